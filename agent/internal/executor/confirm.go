package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/pilot-net/remote-agent/pkg/types"
)

// Confirmer asks an operator whether a command may run.
type Confirmer interface {
	// Confirm blocks until the operator answers. Only an explicit yes
	// returns true.
	Confirm(ctx context.Context, cmd types.Command) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, cmd types.Command) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, cmd types.Command) (bool, error) {
	return f(ctx, cmd)
}

// TerminalConfirmer prompts on the console. With no terminal attached
// there is nobody to ask, so every command is declined.
//
// In is read by a single goroutine for the life of the confirmer, started
// at the first prompt. A line typed after a prompt was abandoned answers
// the next prompt.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer

	// IsTerminal reports whether In is interactive.
	IsTerminal func() bool

	logger *slog.Logger

	once    sync.Once
	lines   chan string
	readErr error // valid once lines is closed
}

// NewTerminalConfirmer creates a confirmer on stdin and stdout.
func NewTerminalConfirmer(logger *slog.Logger) *TerminalConfirmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TerminalConfirmer{
		In:  os.Stdin,
		Out: os.Stdout,
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
		logger: logger.With("component", "confirm"),
	}
}

// Confirm prints the command and reads one line.
func (c *TerminalConfirmer) Confirm(ctx context.Context, cmd types.Command) (bool, error) {
	if c.IsTerminal != nil && !c.IsTerminal() {
		c.logger.Warn("confirmation required but no terminal attached", "command", cmd.Text)
		return false, nil
	}

	fmt.Fprintf(c.Out, "\nServer wants to execute: %s\nAllow? (y/N): ", cmd.Text)

	c.once.Do(c.startReader)

	select {
	case line, ok := <-c.lines:
		if !ok {
			if errors.Is(c.readErr, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("reading confirmation: %w", c.readErr)
		}
		return isYes(line), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// startReader feeds lines from In until it fails.
func (c *TerminalConfirmer) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		r := bufio.NewReader(c.In)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				c.lines <- line
			}
			if err != nil {
				c.readErr = err
				return
			}
		}
	}()
}

func isYes(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
