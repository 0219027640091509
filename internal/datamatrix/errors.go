package datamatrix

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a symbol's payload is not valid UTF-8.
var ErrInvalidPayload = errors.New("payload is not valid UTF-8")

// DecodeError reports a decoder failure other than "no symbol found".
type DecodeError struct {
	Symbol int // 1-based index of the symbol on the page
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("symbol %d: %v", e.Symbol, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
