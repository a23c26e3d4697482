package blob

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrStorage       = errors.New("weight storage failure")
	ErrWriterClosed  = errors.New("writer is closed")
	ErrOffsetOverlap = errors.New("blob regions overlap")
	ErrOutOfBounds   = errors.New("blob region extends beyond file")
	ErrMisaligned    = errors.New("blob offset is not float32 aligned")
)

// ValidationError provides detailed information about region validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Region  string // Primary region name involved
	Region2 string // Secondary region name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Region2 != "" {
		return fmt.Sprintf("%s: regions %q and %q: %s", e.Type, e.Region, e.Region2, e.Details)
	}
	if e.Region != "" {
		return fmt.Sprintf("%s: region %q: %s", e.Type, e.Region, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap maps the validation type to its sentinel error.
func (e *ValidationError) Unwrap() error {
	switch e.Type {
	case "offset_overlap":
		return ErrOffsetOverlap
	case "out_of_bounds":
		return ErrOutOfBounds
	case "misaligned":
		return ErrMisaligned
	default:
		return nil
	}
}
