package expander

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/brickheat/pkg/expander/wire"
)

const (
	// DefaultBaudRate matches the co-processor firmware.
	DefaultBaudRate = 115200
	// DefaultReplyTimeout bounds the wait for a command reply.
	DefaultReplyTimeout = 500 * time.Millisecond
	// readPoll is the port read timeout; a read returning no data is retried
	// until the reply timeout elapses.
	readPoll = 50 * time.Millisecond
)

// ErrReplyTimeout is returned when the co-processor does not answer in time.
var ErrReplyTimeout = errors.New("reply timed out")

// Serial drives a co-processor expander (see firmware/) over a serial port.
//
// Commands are single lines of the wire protocol: "O<pin>" configures an
// output, "W<pin> <0|1>" writes it. The co-processor answers "OK" or
// "ERR <reason>".
type Serial struct {
	port         string
	baudRate     int
	replyTimeout time.Duration

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	pending []byte
}

// NewSerial creates a new co-processor expander on the given port.
func NewSerial(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:         port,
		baudRate:     baudRate,
		replyTimeout: DefaultReplyTimeout,
	}
}

// Connect opens the serial port.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	s.attach(port)
	return nil
}

// attach uses an already open connection. Must be called with mu held.
func (s *Serial) attach(conn io.ReadWriteCloser) {
	s.conn = conn
	s.pending = nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.pending = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// SetOutput configures a co-processor pin as output.
func (s *Serial) SetOutput(pin uint8) error {
	return s.command(wire.Command{Op: wire.OpOutput, Pin: pin}.String())
}

// WriteOutput sets the level of a co-processor output pin. A co-processor
// that reset since SetOutput has forgotten the pin; it is configured again
// and the write repeated once.
func (s *Serial) WriteOutput(pin uint8, high bool) error {
	cmd := wire.Command{Op: wire.OpWrite, Pin: pin, High: high}.String()
	err := s.command(cmd)
	if !errors.Is(err, ErrNotConfigured) {
		return err
	}
	if err := s.SetOutput(pin); err != nil {
		return err
	}
	return s.command(cmd)
}

func (s *Serial) command(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	if _, err := io.WriteString(s.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}

	reply, err := s.readLine()
	if err != nil {
		return fmt.Errorf("failed to read reply to %q: %w", cmd, err)
	}
	return parseReply(reply)
}

// readLine returns the next reply line. A port read timing out returns no
// data and no error, so the total wait is bounded by replyTimeout here.
// Must be called with mu held.
func (s *Serial) readLine() (string, error) {
	deadline := time.Now().Add(s.replyTimeout)
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i+1])
			s.pending = s.pending[i+1:]
			return line, nil
		}
		if !time.Now().Before(deadline) {
			s.pending = nil
			return "", ErrReplyTimeout
		}
		n, err := s.conn.Read(buf)
		s.pending = append(s.pending, buf[:n]...)
		if err != nil {
			return "", err
		}
	}
}

// parseReply interprets a co-processor reply line.
func parseReply(line string) error {
	ok, reason, valid := wire.ParseReply(line)
	switch {
	case !valid:
		return fmt.Errorf("invalid reply: %q", strings.TrimSpace(line))
	case ok:
		return nil
	case reason == wire.ReasonPin:
		return fmt.Errorf("co-processor: %w", ErrNotConfigured)
	default:
		return fmt.Errorf("co-processor error: %s", reason)
	}
}
