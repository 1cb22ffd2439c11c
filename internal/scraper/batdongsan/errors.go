package batdongsan

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAnchor is wrapped by every StructuralError caused by an
	// element or label that could not be found.
	ErrMissingAnchor = errors.New("anchor not found")

	ErrMalformedLocation = errors.New("malformed location")
	ErrMalformedDate     = errors.New("malformed publish date")
	ErrMalformedNumber   = errors.New("malformed number")
)

// StructuralError reports markup that no longer matches what the engine
// expects. Anchor names the selector or label that failed.
type StructuralError struct {
	Anchor string
	Err    error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("page structure changed at %q: %v", e.Anchor, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

func missing(anchor string) error {
	return &StructuralError{Anchor: anchor, Err: ErrMissingAnchor}
}
