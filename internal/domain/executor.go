package domain

import (
	"context"
	"fmt"
	"io"
)

// Command is one external dump or restore tool invocation. Container is
// empty for tools run directly on the host.
type Command struct {
	Container string
	Name      string
	Args      []string
	Env       []string
}

func (c Command) String() string {
	if c.Container != "" {
		return fmt.Sprintf("%s (in container %s)", c.Name, c.Container)
	}
	return c.Name
}

// Executor runs dump and restore tools.
type Executor interface {
	// Stream starts cmd and returns its standard output. Close waits for
	// the process and returns a *ToolError when it exited non-zero.
	Stream(ctx context.Context, cmd Command) (io.ReadCloser, error)
	// Feed runs cmd with stdin as its standard input and waits for it.
	Feed(ctx context.Context, cmd Command, stdin io.Reader) error
}

// ToolError reports a tool that exited non-zero.
type ToolError struct {
	Tool       string
	ExitCode   int
	StderrTail string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.StderrTail)
}
