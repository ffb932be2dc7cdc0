// Package heater drives a heater actuator through one expander output pin.
//
// The controller keeps no state of its own: the off-polarity is passed on
// every call so the caller's working copy stays the single source of truth.
package heater

import (
	"fmt"

	"github.com/itohio/brickheat/pkg/expander"
)

// Controller switches a single expander pin on and off.
type Controller struct {
	out expander.Expander
	pin uint8
}

// New creates a heater controller on the given expander pin.
func New(out expander.Expander, pin uint8) *Controller {
	return &Controller{out: out, pin: pin}
}

// Pin returns the expander pin index.
func (c *Controller) Pin() uint8 {
	return c.pin
}

// InitializeOutput configures the pin as output and turns the heater off.
func (c *Controller) InitializeOutput(offPolarity uint8) error {
	if err := c.out.SetOutput(c.pin); err != nil {
		return fmt.Errorf("failed to configure heater pin %d: %w", c.pin, err)
	}
	return c.WriteOff(offPolarity)
}

// WriteOn drives the pin to the complement of offPolarity.
func (c *Controller) WriteOn(offPolarity uint8) error {
	if err := c.out.WriteOutput(c.pin, OnLevel(offPolarity)); err != nil {
		return fmt.Errorf("failed to turn heater on: %w", err)
	}
	return nil
}

// WriteOff drives the pin to offPolarity.
func (c *Controller) WriteOff(offPolarity uint8) error {
	if err := c.out.WriteOutput(c.pin, OffLevel(offPolarity)); err != nil {
		return fmt.Errorf("failed to turn heater off: %w", err)
	}
	return nil
}

// OffLevel is the pin level meaning "heater off".
func OffLevel(offPolarity uint8) bool {
	return offPolarity != 0
}

// OnLevel is the pin level meaning "heater on".
func OnLevel(offPolarity uint8) bool {
	return !OffLevel(offPolarity)
}
