package expander

import (
	"fmt"
	"sync"
)

// Mock records pin directions and levels for testing and bench use.
type Mock struct {
	mu      sync.RWMutex
	outputs map[uint8]bool
	levels  map[uint8]bool
	writes  int
	err     error
}

// NewMock creates a new mocked expander instance.
func NewMock() *Mock {
	return &Mock{
		outputs: make(map[uint8]bool),
		levels:  make(map[uint8]bool),
	}
}

// SetOutput marks the pin as output.
func (m *Mock) SetOutput(pin uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.outputs[pin] = true
	return nil
}

// WriteOutput records the level of an output pin.
func (m *Mock) WriteOutput(pin uint8, high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if !m.outputs[pin] {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	m.levels[pin] = high
	m.writes++
	return nil
}

// Level returns the last written level of a pin and whether it was written.
func (m *Mock) Level(pin uint8) (high bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	high, ok = m.levels[pin]
	return high, ok
}

// IsOutput reports whether SetOutput was called for the pin.
func (m *Mock) IsOutput(pin uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outputs[pin]
}

// Writes returns the number of successful WriteOutput calls.
func (m *Mock) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// FailWith makes subsequent calls return err (nil restores normal operation).
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
