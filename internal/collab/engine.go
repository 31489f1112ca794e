package collab

import (
	"fmt"
	"log"

	"collabcore/pkg/ot"
)

// Committed is the result of a successful apply: the fully-rebased compound
// (a single client op can split during rebase) and the authoritative new
// version. The originator receives it as its acknowledgment; everyone else
// in the room receives it verbatim as a broadcast.
type Committed struct {
	Ops     []ot.Operation `json:"ops"`
	Version int            `json:"version"`
}

// Engine rebases client-submitted operations against everything committed
// since their base version and appends the result to the document log.
type Engine struct {
	store *DocStore
}

// NewEngine creates a transform engine over the given store.
func NewEngine(store *DocStore) *Engine {
	return &Engine{store: store}
}

// Apply accepts an operation authored against baseVersion, rebases it
// against every operation committed since, applies it, and advances the
// document version. A stale or future baseVersion is rejected with
// ErrInvalidVersion (never clamped); a structurally invalid or
// out-of-bounds operation is rejected with ErrMalformedOperation. Rejections
// leave the document's log and version untouched, and a failure in one
// document never affects another: each document serializes independently.
func (e *Engine) Apply(docID string, op ot.Operation, baseVersion int, submitter string) (Committed, error) {
	if err := op.Validate(); err != nil {
		return Committed{}, fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}

	doc := e.store.get(docID)
	doc.mu.Lock()
	defer doc.mu.Unlock()

	if baseVersion < 0 || baseVersion > doc.version {
		return Committed{}, fmt.Errorf("%w: base version %d, current version %d", ErrInvalidVersion, baseVersion, doc.version)
	}

	ops := []ot.Operation{op}
	missed := doc.log[baseVersion:]
	for _, entry := range missed {
		ops = ot.TransformOps(ops, entry.Ops, submitter, entry.Submitter)
	}

	content, err := ot.ApplyAll(doc.content, ops)
	if err != nil {
		return Committed{}, fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}

	doc.content = content
	doc.version++
	doc.log = append(doc.log, LogEntry{Version: doc.version, Submitter: submitter, Ops: ops})

	if len(missed) > 0 {
		log.Printf("[OT] Document %s: rebased op from %s across %d missed versions, now at version %d", docID, submitter, len(missed), doc.version)
	}
	return Committed{Ops: ops, Version: doc.version}, nil
}
