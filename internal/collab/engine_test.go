package collab

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"collabcore/pkg/ot"
)

func newEngine() (*Engine, *DocStore) {
	store := NewDocStore()
	return NewEngine(store), store
}

func mustApply(t *testing.T, e *Engine, docID string, op ot.Operation, base int, submitter string) Committed {
	t.Helper()
	committed, err := e.Apply(docID, op, base, submitter)
	if err != nil {
		t.Fatalf("apply %v at base %d: %v", op, base, err)
	}
	return committed
}

func TestVersionMonotonic(t *testing.T) {
	e, store := newEngine()

	if v := store.CurrentVersion("doc"); v != 0 {
		t.Fatalf("never-seen document version = %d, want 0", v)
	}

	last := 0
	for i := 0; i < 10; i++ {
		c := mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "x"}, last, "alice")
		if c.Version != last+1 {
			t.Fatalf("version %d after %d: not strictly increasing without gaps", c.Version, last)
		}
		last = c.Version
	}
	if v := store.CurrentVersion("doc"); v != 10 {
		t.Fatalf("got version %d, want 10", v)
	}
}

func TestInvalidVersionRejected(t *testing.T) {
	e, store := newEngine()
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "hello"}, 0, "alice")

	op := ot.Operation{Type: ot.OpInsert, Position: 0, Content: "x"}
	for _, base := range []int{-1, 2, 100} {
		_, err := e.Apply("doc", op, base, "bob")
		if !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("base %d: got %v, want ErrInvalidVersion", base, err)
		}
	}

	// Rejections leave the document untouched.
	content, version := store.Snapshot("doc")
	if content != "hello" || version != 1 {
		t.Fatalf("rejection mutated document: content=%q version=%d", content, version)
	}
}

func TestMalformedOperationRejected(t *testing.T) {
	e, store := newEngine()
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "ab"}, 0, "alice")

	cases := []ot.Operation{
		{Type: ot.OpInsert, Position: -1, Content: "x"},
		{Type: ot.OpInsert, Position: 0},
		{Type: ot.OpDelete, Position: 0, Length: 0},
		{Type: ot.OpDelete, Position: 0, Length: 99}, // out of bounds
		{Type: ot.OpInsert, Position: 50, Content: "x"},
	}
	for _, op := range cases {
		if _, err := e.Apply("doc", op, 1, "bob"); !errors.Is(err, ErrMalformedOperation) {
			t.Fatalf("%v: got %v, want ErrMalformedOperation", op, err)
		}
	}

	content, version := store.Snapshot("doc")
	if content != "ab" || version != 1 {
		t.Fatalf("rejection mutated document: content=%q version=%d", content, version)
	}
}

// The end-to-end rebase scenario: the document starts empty, "bob" inserts
// "hello" at base 0, then "alice" (still at base 0) inserts "hi " at the
// same position. alice's identity sorts first, so her insert is not shifted
// and the final content is "hi hello" on every run.
func TestConcurrentSamePositionInserts(t *testing.T) {
	e, store := newEngine()

	c1 := mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "hello"}, 0, "bob")
	if c1.Version != 1 {
		t.Fatalf("got version %d, want 1", c1.Version)
	}
	if content, _ := store.Snapshot("doc"); content != "hello" {
		t.Fatalf("got %q, want %q", content, "hello")
	}

	c2 := mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "hi "}, 0, "alice")
	if c2.Version != 2 {
		t.Fatalf("got version %d, want 2", c2.Version)
	}
	content, _ := store.Snapshot("doc")
	if content != "hi hello" {
		t.Fatalf("got %q, want %q", content, "hi hello")
	}
	if len(c2.Ops) != 1 || c2.Ops[0].Position != 0 {
		t.Fatalf("alice's insert should not be shifted, got %v", c2.Ops)
	}
}

// Deleting the same range twice, the second submission against a stale base,
// leaves the content identical to deleting it once.
func TestStaleDuplicateDelete(t *testing.T) {
	e, store := newEngine()
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "abcdefg"}, 0, "alice")

	del := ot.Operation{Type: ot.OpDelete, Position: 2, Length: 3}
	mustApply(t, e, "doc", del, 1, "alice")
	once, _ := store.Snapshot("doc")

	c := mustApply(t, e, "doc", del, 1, "bob") // stale base, same range
	twice, version := store.Snapshot("doc")

	if twice != once {
		t.Fatalf("duplicate delete changed content: %q vs %q", twice, once)
	}
	if version != 3 || c.Version != 3 {
		t.Fatalf("version should still advance, got %d", version)
	}
	if len(c.Ops) != 0 {
		t.Fatalf("overlap should transform away, got %v", c.Ops)
	}
}

// A stale delete that splits around one committed insert must still make room
// for the next committed insert, which lands inside the tail piece of the
// split. Both inserted characters have to survive.
func TestSplitDeleteSpansLaterInsert(t *testing.T) {
	e, store := newEngine()
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "0123456789"}, 0, "alice")
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 3, Content: "A"}, 1, "alice")
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 6, Content: "B"}, 2, "alice")

	// bob's delete was authored when the document was still "0123456789".
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpDelete, Position: 1, Length: 8}, 1, "bob")

	content, version := store.Snapshot("doc")
	if content != "0AB9" {
		t.Fatalf("got %q, want %q", content, "0AB9")
	}
	if version != 4 {
		t.Fatalf("got version %d, want 4", version)
	}
}

// TestStaleDeleteAgainstCommittedInserts commits a run of single-character
// marker inserts and then a delete authored before any of them. The expected
// content is computed independently of the transform: every marker survives,
// and exactly the originally targeted base characters are gone.
func TestStaleDeleteAgainstCommittedInserts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const base = "abcdefghijklmnop"
	const markers = "ABCDEFGH"

	for iter := 0; iter < 500; iter++ {
		e, store := newEngine()
		docID := fmt.Sprintf("doc-%d", iter)
		mustApply(t, e, docID, ot.Operation{Type: ot.OpInsert, Position: 0, Content: base}, 0, "alice")

		version := 1
		for k := 0; k < 1+rng.Intn(4); k++ {
			content, _ := store.Snapshot(docID)
			pos := rng.Intn(len(content) + 1)
			c := mustApply(t, e, docID, ot.Operation{Type: ot.OpInsert, Position: pos, Content: string(markers[k])}, version, "alice")
			version = c.Version
		}

		preDelete, _ := store.Snapshot(docID)
		pos := rng.Intn(len(base))
		length := 1 + rng.Intn(len(base)-pos)
		mustApply(t, e, docID, ot.Operation{Type: ot.OpDelete, Position: pos, Length: length}, 1, "bob")

		// Base characters are unique, so each one's original index tells
		// whether bob's delete targeted it. Markers are never base characters.
		var want strings.Builder
		for i := 0; i < len(preDelete); i++ {
			if idx := strings.IndexByte(base, preDelete[i]); idx >= pos && idx < pos+length {
				continue
			}
			want.WriteByte(preDelete[i])
		}

		got, _ := store.Snapshot(docID)
		if got != want.String() {
			t.Fatalf("iteration %d: delete(%d,%d) after inserts: got %q, want %q (pre-delete %q)",
				iter, pos, length, got, want.String(), preDelete)
		}
	}
}

func TestRebaseAcrossMultipleMissedVersions(t *testing.T) {
	e, store := newEngine()

	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "world"}, 0, "alice")
	mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "hello "}, 1, "alice")

	// bob appends "!" authored when the document was just "world".
	c := mustApply(t, e, "doc", ot.Operation{Type: ot.OpInsert, Position: 5, Content: "!"}, 1, "bob")
	content, _ := store.Snapshot("doc")
	if content != "hello world!" {
		t.Fatalf("got %q, want %q", content, "hello world!")
	}
	if c.Version != 3 {
		t.Fatalf("got version %d, want 3", c.Version)
	}
}

func TestDocumentsAreIndependent(t *testing.T) {
	e, store := newEngine()
	mustApply(t, e, "doc-a", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "aaa"}, 0, "alice")

	if _, err := e.Apply("doc-b", ot.Operation{Type: ot.OpInsert, Position: 0, Content: "x"}, 7, "alice"); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("got %v, want ErrInvalidVersion", err)
	}

	// The failure in doc-b leaves doc-a fully usable.
	mustApply(t, e, "doc-a", ot.Operation{Type: ot.OpInsert, Position: 3, Content: "b"}, 1, "alice")
	content, version := store.Snapshot("doc-a")
	if content != "aaab" || version != 2 {
		t.Fatalf("got content=%q version=%d", content, version)
	}
}
