package expander

import "errors"

// ErrNotConfigured is returned when writing a pin that was not set up as an
// output.
var ErrNotConfigured = errors.New("pin not configured as output")

// Expander defines the interface for digital I/O expanders (real or mocked).
type Expander interface {
	SetOutput(pin uint8) error
	WriteOutput(pin uint8, high bool) error
}

// Ensure Serial implements Expander.
var _ Expander = (*Serial)(nil)

// Ensure GPIO implements Expander.
var _ Expander = (*GPIO)(nil)

// Ensure Mock implements Expander.
var _ Expander = (*Mock)(nil)
