package quant

import "fmt"

// ParseError is returned when a numeric string cannot be read as a Decimal.
// Callers on display paths usually fall back to Zero (see ParseOrZero).
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("quant: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
