package collab

import (
	"sort"
	"sync"

	"collabcore/pkg/ot"
)

// LogEntry is one committed, fully-rebased operation in a document's log.
// Entry i of the log carries version i+1; replaying the log from an empty
// string yields the document's materialized content.
type LogEntry struct {
	Version   int
	Submitter string
	Ops       []ot.Operation
}

// document is the per-surface state. mu is the document's serialization
// unit: it is held across the whole rebase-apply-append write path, so
// exactly one apply is ever mid-flight per document.
type document struct {
	mu      sync.Mutex
	version int
	content string
	log     []LogEntry
}

// DocSnapshot is a point-in-time view of a document's materialized state.
type DocSnapshot struct {
	ID      string
	Content string
	Version int
}

// DocStore holds every live document. Appending to a document's log goes
// exclusively through the Engine; nothing else mutates document state.
type DocStore struct {
	mu   sync.RWMutex
	docs map[string]*document
}

// NewDocStore creates an empty document store.
func NewDocStore() *DocStore {
	return &DocStore{docs: make(map[string]*document)}
}

func (s *DocStore) get(docID string) *document {
	s.mu.RLock()
	doc, ok := s.docs[docID]
	s.mu.RUnlock()
	if ok {
		return doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok = s.docs[docID]; ok {
		return doc
	}
	doc = &document{}
	s.docs[docID] = doc
	return doc
}

func (s *DocStore) peek(docID string) *document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID]
}

// CurrentVersion returns the document's version, 0 for a never-seen document.
func (s *DocStore) CurrentVersion(docID string) int {
	doc := s.peek(docID)
	if doc == nil {
		return 0
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.version
}

// Snapshot returns the materialized content and version of a document.
func (s *DocStore) Snapshot(docID string) (string, int) {
	doc := s.peek(docID)
	if doc == nil {
		return "", 0
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.content, doc.version
}

// Snapshots returns a stable-ordered snapshot of every live document, for
// the persistence sink.
func (s *DocStore) Snapshots() []DocSnapshot {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]DocSnapshot, 0, len(ids))
	for _, id := range ids {
		content, version := s.Snapshot(id)
		out = append(out, DocSnapshot{ID: id, Content: content, Version: version})
	}
	return out
}
