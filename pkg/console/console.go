// Package console is the line-oriented I/O used by the bench setup menus.
// Input comes from an interactive terminal (readline), a serial port or any
// io.Reader; output goes to a plain io.Writer.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrInvalidNumber is returned when a line is not a number.
var ErrInvalidNumber = errors.New("invalid number")

// LineReader reads one line of user input without the line terminator.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// Console combines a line reader and an output writer.
type Console struct {
	in  LineReader
	out io.Writer
}

// New creates a console.
func New(in LineReader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// Writer returns the output writer.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Println writes a line.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Printf writes formatted text.
func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

// ReadLine prints prompt and reads one trimmed line.
func (c *Console) ReadLine(prompt string) (string, error) {
	line, err := c.in.ReadLine(prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadInt reads a line and parses it as a decimal integer.
func (c *Console) ReadInt(prompt string) (int, error) {
	line, err := c.ReadLine(prompt)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, line)
	}
	return v, nil
}

// ReadFloat reads a line and parses it as a decimal number.
func (c *Console) ReadFloat(prompt string) (float32, error) {
	line, err := c.ReadLine(prompt)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(line, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, line)
	}
	return float32(v), nil
}

// Scanner reads lines from any reader, echoing the prompt to out.
type Scanner struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScanner creates a line reader over r. Prompts are written to out.
func NewScanner(r io.Reader, out io.Writer) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r), out: out}
}

// ReadLine prints the prompt and returns the next line, io.EOF at the end.
func (s *Scanner) ReadLine(prompt string) (string, error) {
	if prompt != "" && s.out != nil {
		fmt.Fprint(s.out, prompt)
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(s.scanner.Text(), "\r"), nil
}
