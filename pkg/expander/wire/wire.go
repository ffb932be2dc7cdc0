// Package wire is the line protocol between the host and the co-processor
// expander firmware. It has no dependencies so the firmware can use it.
//
//	host -> O<pin>           configure pin as output
//	host -> W<pin> <0|1>     write output level
//	host <- OK | ERR <reason>
package wire

import (
	"errors"
	"strconv"
	"strings"
)

// Op is a command opcode.
type Op byte

const (
	OpOutput Op = 'O'
	OpWrite  Op = 'W'
)

// Replies and error reasons.
const (
	ReplyOK = "OK"

	ReasonSyntax = "syntax"
	ReasonRange  = "range"
	ReasonPin    = "pin"
)

// ErrSyntax is returned for a malformed command line.
var ErrSyntax = errors.New("malformed command")

// Command is one request line.
type Command struct {
	Op   Op
	Pin  uint8
	High bool
}

// String renders the command without the line terminator.
func (c Command) String() string {
	s := string(c.Op) + strconv.Itoa(int(c.Pin))
	if c.Op != OpWrite {
		return s
	}
	if c.High {
		return s + " 1"
	}
	return s + " 0"
}

// ParseCommand parses a request line; surrounding whitespace is ignored.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return Command{}, ErrSyntax
	}

	cmd := Command{Op: Op(line[0])}
	args := strings.Fields(line[1:])
	switch {
	case cmd.Op == OpOutput && len(args) == 1:
	case cmd.Op == OpWrite && len(args) == 2:
		switch args[1] {
		case "0":
		case "1":
			cmd.High = true
		default:
			return Command{}, ErrSyntax
		}
	default:
		return Command{}, ErrSyntax
	}

	pin, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return Command{}, ErrSyntax
	}
	cmd.Pin = uint8(pin)
	return cmd, nil
}

// Error renders an error reply.
func Error(reason string) string {
	return "ERR " + reason
}

// ParseReply splits a reply line. ok is true for "OK"; otherwise reason holds
// the text after "ERR", and valid is false for anything else.
func ParseReply(line string) (ok bool, reason string, valid bool) {
	line = strings.TrimSpace(line)
	if line == ReplyOK {
		return true, "", true
	}
	if rest, found := strings.CutPrefix(line, "ERR"); found {
		return false, strings.TrimSpace(rest), true
	}
	return false, "", false
}
