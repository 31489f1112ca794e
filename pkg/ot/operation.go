// Package ot implements operational transformation for real-time collaborative editing.
package ot

import (
	"errors"
	"fmt"
)

// OpType represents the type of operation.
type OpType int

const (
	OpInsert OpType = iota
	OpDelete
	OpRetain
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpRetain:
		return "retain"
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}

// Operation represents a single edit operation against a text surface.
type Operation struct {
	Type     OpType `json:"type"`
	Position int    `json:"position"`
	Content  string `json:"content,omitempty"` // For insert
	Length   int    `json:"length,omitempty"`  // For delete/retain
}

// Validate reports whether the operation is structurally sound. It does not
// check bounds against any particular document content; Apply does that.
func (op Operation) Validate() error {
	if op.Position < 0 {
		return fmt.Errorf("negative position %d", op.Position)
	}
	switch op.Type {
	case OpInsert:
		if op.Content == "" {
			return errors.New("insert without content")
		}
	case OpDelete:
		if op.Length < 1 {
			return fmt.Errorf("delete of length %d", op.Length)
		}
	case OpRetain:
		if op.Length < 0 {
			return fmt.Errorf("retain of length %d", op.Length)
		}
	default:
		return fmt.Errorf("unknown operation type %d", int(op.Type))
	}
	return nil
}

// Apply applies the operation to s and returns the resulting text.
func (op Operation) Apply(s string) (string, error) {
	switch op.Type {
	case OpInsert:
		if op.Position < 0 || op.Position > len(s) {
			return "", fmt.Errorf("insert position %d out of bounds (content length %d)", op.Position, len(s))
		}
		return s[:op.Position] + op.Content + s[op.Position:], nil
	case OpDelete:
		if op.Position < 0 || op.Position+op.Length > len(s) {
			return "", fmt.Errorf("delete range %d-%d out of bounds (content length %d)", op.Position, op.Position+op.Length, len(s))
		}
		return s[:op.Position] + s[op.Position+op.Length:], nil
	case OpRetain:
		return s, nil
	}
	return "", fmt.Errorf("unknown operation type %d", int(op.Type))
}

// ApplyAll applies a compound of operations in sequence.
func ApplyAll(s string, ops []Operation) (string, error) {
	var err error
	for _, op := range ops {
		if s, err = op.Apply(s); err != nil {
			return "", err
		}
	}
	return s, nil
}

// TransformAgainst rebases op against a single already-committed operation.
// opSubmitter and committedSubmitter break ties for equal-position inserts:
// the lexicographically lower identity's insert is treated as having happened
// first, so its text ends up earlier in the document. The result is a compound
// because a delete straddling a committed insert splits in two, and a delete
// fully covered by a committed delete vanishes.
func TransformAgainst(op, committed Operation, opSubmitter, committedSubmitter string) []Operation {
	if op.Type == OpRetain || committed.Type == OpRetain {
		return []Operation{op}
	}

	switch op.Type {
	case OpInsert:
		switch committed.Type {
		case OpInsert:
			if committed.Position < op.Position ||
				(committed.Position == op.Position && committedSubmitter < opSubmitter) {
				op.Position += len(committed.Content)
			}
			return []Operation{op}

		case OpDelete:
			delEnd := committed.Position + committed.Length
			switch {
			case op.Position <= committed.Position:
				// Insert before the deleted range: unaffected.
			case op.Position >= delEnd:
				op.Position -= committed.Length
			default:
				// Insert landed inside the deleted range; re-home it at the
				// delete start so the inserted text survives.
				op.Position = committed.Position
			}
			return []Operation{op}
		}

	case OpDelete:
		opEnd := op.Position + op.Length
		switch committed.Type {
		case OpInsert:
			insLen := len(committed.Content)
			switch {
			case committed.Position <= op.Position:
				op.Position += insLen
				return []Operation{op}
			case committed.Position >= opEnd:
				return []Operation{op}
			default:
				// Insert landed strictly inside the range being deleted.
				// Split the delete around it so the insert is not swallowed.
				left := committed.Position - op.Position
				return []Operation{
					{Type: OpDelete, Position: op.Position, Length: left},
					{Type: OpDelete, Position: op.Position + insLen, Length: op.Length - left},
				}
			}

		case OpDelete:
			comEnd := committed.Position + committed.Length
			switch {
			case comEnd <= op.Position:
				op.Position -= committed.Length
				return []Operation{op}
			case opEnd <= committed.Position:
				return []Operation{op}
			default:
				// Overlapping deletes: the shared span is already gone, so
				// only the remainder on either side is still ours to delete.
				left := maxInt(0, committed.Position-op.Position)
				right := maxInt(0, opEnd-comEnd)
				if left+right == 0 {
					return nil
				}
				return []Operation{{
					Type:     OpDelete,
					Position: minInt(op.Position, committed.Position),
					Length:   left + right,
				}}
			}
		}
	}

	return []Operation{op}
}

// TransformOps rebases an incoming compound against a committed compound.
// Both compounds are sequential: each primitive is expressed against the text
// produced by the primitives before it. While the incoming side is rebased,
// the committed side is rebased back across it, so when an incoming primitive
// splits, the later pieces still see the committed primitives in their own
// coordinate space.
func TransformOps(incoming, committed []Operation, incomingSubmitter, committedSubmitter string) []Operation {
	rebased, _ := transformCompounds(incoming, committed, incomingSubmitter, committedSubmitter)
	return rebased
}

// transformCompounds derives both bottom sides of the transformation diamond
// for two sequential compounds authored against the same base text. The first
// result applies after b, the second applies after a.
func transformCompounds(a, b []Operation, aSubmitter, bSubmitter string) ([]Operation, []Operation) {
	if len(a) == 0 || len(b) == 0 {
		return a, b
	}
	if len(a) == 1 && len(b) == 1 {
		return TransformAgainst(a[0], b[0], aSubmitter, bSubmitter),
			TransformAgainst(b[0], a[0], bSubmitter, aSubmitter)
	}
	if len(a) == 1 {
		aMid, bHead := transformCompounds(a, b[:1], aSubmitter, bSubmitter)
		aOut, bTail := transformCompounds(aMid, b[1:], aSubmitter, bSubmitter)
		return aOut, concatOps(bHead, bTail)
	}
	aHead, bMid := transformCompounds(a[:1], b, aSubmitter, bSubmitter)
	aTail, bOut := transformCompounds(a[1:], bMid, aSubmitter, bSubmitter)
	return concatOps(aHead, aTail), bOut
}

func concatOps(head, tail []Operation) []Operation {
	out := make([]Operation, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
