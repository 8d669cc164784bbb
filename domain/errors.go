package domain

import (
	"errors"
	"fmt"
)

// MalformedDomainError reports a domain sequence that cannot be normalized
// into a binary tree: a connector starved of operands, a condition whose
// value does not match its operator's shape, or a sequence that reduces to
// the wrong number of top-level expressions.
type MalformedDomainError struct {
	// Reason is a human-readable description of the defect.
	Reason string

	// Pos is the index of the offending term in the input sequence,
	// or -1 when the defect concerns the sequence as a whole.
	Pos int
}

func (e *MalformedDomainError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("malformed domain at term %d: %s", e.Pos, e.Reason)
	}
	return fmt.Sprintf("malformed domain: %s", e.Reason)
}

// IsMalformedDomain reports whether err is (or wraps) a
// MalformedDomainError.
func IsMalformedDomain(err error) bool {
	var me *MalformedDomainError
	return errors.As(err, &me)
}

func malformed(pos int, format string, args ...any) *MalformedDomainError {
	return &MalformedDomainError{Reason: fmt.Sprintf(format, args...), Pos: pos}
}
