//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware turns a small MCU into the I/O expander of a brick. The
// host drives it over UART with the line protocol of pkg/expander/wire.
package main

import (
	"machine"
	"time"

	"github.com/itohio/brickheat/pkg/expander/wire"
)

var (
	uart = machine.UART0

	// Pins configured as output. Outputs keep their level while the host
	// sleeps or restarts.
	configured [len(expanderPins)]bool

	lineBuffer [LINE_BUFFER_SIZE]byte
	linePos    int
	overflow   bool
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		time.Sleep(POLL_INTERVAL_US * time.Microsecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			switch {
			case overflow:
				reply(wire.Error(wire.ReasonSyntax))
			case linePos > 0:
				reply(execute(string(lineBuffer[:linePos])))
			}
			linePos = 0
			overflow = false
			continue
		}

		if linePos < len(lineBuffer) {
			lineBuffer[linePos] = data
			linePos++
		} else {
			overflow = true
		}
	}
}

func execute(line string) string {
	cmd, err := wire.ParseCommand(line)
	if err != nil {
		return wire.Error(wire.ReasonSyntax)
	}
	if int(cmd.Pin) >= len(expanderPins) {
		return wire.Error(wire.ReasonRange)
	}

	pin := expanderPins[cmd.Pin]
	switch cmd.Op {
	case wire.OpOutput:
		if !configured[cmd.Pin] {
			pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
			configured[cmd.Pin] = true
		}
	case wire.OpWrite:
		if !configured[cmd.Pin] {
			return wire.Error(wire.ReasonPin)
		}
		pin.Set(cmd.High)
	}
	return wire.ReplyOK
}

func reply(s string) {
	uart.Write([]byte(s))
	uart.Write([]byte("\n"))
}
