//go:build tinygo

package main

import "machine"

const (
	// UART_BAUD_RATE must match expander.DefaultBaudRate on the host.
	UART_BAUD_RATE = 115200

	// LINE_BUFFER_SIZE bounds a command line; longer lines are discarded.
	LINE_BUFFER_SIZE = 16

	// POLL_INTERVAL_US is the idle sleep of the main loop.
	POLL_INTERVAL_US = 100
)

// expanderPins maps expander pin indices to MCU pins. Index 0 is the heater
// relay of the reference board.
var expanderPins = [...]machine.Pin{
	machine.D7,
	machine.D8,
	machine.D9,
	machine.D10,
}
