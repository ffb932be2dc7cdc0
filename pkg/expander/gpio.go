package expander

import (
	"errors"
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// GPIO uses lines of a Linux GPIO character device as expander pins.
type GPIO struct {
	chipName string

	mu    sync.Mutex
	chip  *gpiod.Chip
	lines map[uint8]*gpiod.Line
}

// NewGPIO creates an expander on the named chip (e.g. "gpiochip0").
// The chip is opened lazily on the first SetOutput.
func NewGPIO(chipName string) *GPIO {
	return &GPIO{
		chipName: chipName,
		lines:    make(map[uint8]*gpiod.Line),
	}
}

// SetOutput requests the line as output, preserving its current level so the
// heater does not glitch before the first explicit write.
func (g *GPIO) SetOutput(pin uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.lines[pin]; ok {
		return nil
	}

	if g.chip == nil {
		chip, err := gpiod.NewChip(g.chipName, gpiod.WithConsumer("brickheat"))
		if err != nil {
			return fmt.Errorf("failed to open chip %s: %w", g.chipName, err)
		}
		g.chip = chip
	}

	inputLine, err := g.chip.RequestLine(int(pin), gpiod.AsInput)
	if err != nil {
		return fmt.Errorf("failed to read pin %d state: %w", pin, err)
	}
	currentVal, err := inputLine.Value()
	inputLine.Close()
	if err != nil {
		return fmt.Errorf("failed to read pin %d value: %w", pin, err)
	}

	line, err := g.chip.RequestLine(int(pin), gpiod.AsOutput(currentVal))
	if err != nil {
		return fmt.Errorf("failed to request output pin %d: %w", pin, err)
	}
	g.lines[pin] = line
	return nil
}

// WriteOutput sets the level of an output line.
func (g *GPIO) WriteOutput(pin uint8, high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	line, ok := g.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}

	value := 0
	if high {
		value = 1
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set pin %d: %w", pin, err)
	}
	return nil
}

// Close releases all lines and the chip.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for pin, line := range g.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close pin %d: %w", pin, err))
		}
	}
	g.lines = make(map[uint8]*gpiod.Line)

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close chip: %w", err))
		}
		g.chip = nil
	}
	return errors.Join(errs...)
}
