package pattern

import (
	"errors"
	"fmt"
)

// Domain errors for the pattern package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, pattern.ErrPatternNotFound) {
//	    // handle not found case
//	}
var (
	// ErrMalformedPattern is matched by every *MalformedPatternError.
	ErrMalformedPattern = errors.New("pattern: malformed")

	// ErrPatternNotFound is returned when a library name does not exist.
	ErrPatternNotFound = errors.New("pattern: not found")

	// ErrInvalidName is returned when a library name is empty, too long or
	// contains characters outside [A-Za-z0-9_.-].
	ErrInvalidName = errors.New("pattern: invalid name")
)

// MalformedPatternError describes why pattern text was rejected.
//
// Row and Column are 1-based. Both are zero when the failure concerns the
// input as a whole (for example, no usable frames).
type MalformedPatternError struct {
	Row    int
	Column int
	Value  string
	Reason string
}

func (e *MalformedPatternError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("pattern: malformed: %s", e.Reason)
	}
	if e.Value == "" {
		return fmt.Sprintf("pattern: malformed at row %d column %d: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("pattern: malformed at row %d column %d (%q): %s", e.Row, e.Column, e.Value, e.Reason)
}

// Is lets errors.Is match ErrMalformedPattern.
func (e *MalformedPatternError) Is(target error) bool {
	return target == ErrMalformedPattern
}
