package console

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens a console on a serial port, e.g. the UART of a bench
// adapter. The returned close function releases the port.
func OpenSerial(port string, baudRate int) (*Console, func() error, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return New(NewScanner(p, p), p), p.Close, nil
}
