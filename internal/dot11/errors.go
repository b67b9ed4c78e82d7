package dot11

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedHeader  = errors.New("dot11: truncated header")
	ErrTruncatedElement = errors.New("dot11: truncated information element")
)

// TruncatedElementError reports where an element sequence stopped. Elements
// before Offset decoded cleanly.
type TruncatedElementError struct {
	Offset    int
	ID        ElementID
	Declared  int // -1 when the length byte is missing
	Remaining int
}

func (e *TruncatedElementError) Error() string {
	if e.Declared < 0 {
		return fmt.Sprintf("%v: missing length byte at offset %d", ErrTruncatedElement, e.Offset)
	}
	return fmt.Sprintf("%v: id=%d at offset %d declares %d bytes, %d remain",
		ErrTruncatedElement, e.ID, e.Offset, e.Declared, e.Remaining)
}

func (e *TruncatedElementError) Unwrap() error {
	return ErrTruncatedElement
}
