package console

import (
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// Terminal reads lines from an interactive terminal with line editing.
type Terminal struct {
	rl *readline.Instance
}

// NewTerminal creates an interactive terminal reader.
func NewTerminal() (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

// ReadLine reads one line using prompt. Ctrl-C discards the current line.
func (t *Terminal) ReadLine(prompt string) (string, error) {
	t.rl.SetPrompt(prompt)
	for {
		line, err := t.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return "", io.EOF
		}
		return line, nil
	}
}

// Stdout returns a writer that coordinates with the prompt.
func (t *Terminal) Stdout() io.Writer {
	return t.rl.Stdout()
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	return t.rl.Close()
}
