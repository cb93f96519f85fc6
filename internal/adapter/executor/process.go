package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/semmidev/backstow/internal/domain"
)

// Process runs tools directly on the host.
type Process struct {
	tailSize int
}

func NewProcess() *Process {
	return &Process{tailSize: StderrTailSize}
}

func (p *Process) Stream(ctx context.Context, cmd domain.Command) (io.ReadCloser, error) {
	if cmd.Container != "" {
		return nil, fmt.Errorf("process executor cannot run %s inside container %s", cmd.Name, cmd.Container)
	}

	c := p.command(ctx, cmd)
	stderr := newTailBuffer(p.tailSize)
	c.Stderr = stderr

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout of %s: %w", cmd.Name, err)
	}

	if err := c.Start(); err != nil {
		return nil, startError(cmd.Name, err)
	}

	return &processStream{cmd: c, stdout: stdout, stderr: stderr, tool: cmd.Name}, nil
}

func (p *Process) Feed(ctx context.Context, cmd domain.Command, stdin io.Reader) error {
	if cmd.Container != "" {
		return fmt.Errorf("process executor cannot run %s inside container %s", cmd.Name, cmd.Container)
	}

	c := p.command(ctx, cmd)
	stderr := newTailBuffer(p.tailSize)
	c.Stdin = stdin
	c.Stdout = io.Discard
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		return startError(cmd.Name, err)
	}
	return waitError(cmd.Name, c.Wait(), stderr)
}

func (p *Process) command(ctx context.Context, cmd domain.Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	return c
}

type processStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	tool   string

	once sync.Once
	err  error
}

func (s *processStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close waits for the process. A reader that stops early closes the pipe
// first, and the tool usually dies of SIGPIPE, which is reported.
func (s *processStream) Close() error {
	s.once.Do(func() {
		s.stdout.Close()
		s.err = waitError(s.tool, s.cmd.Wait(), s.stderr)
	})
	return s.err
}

func startError(tool string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return &domain.ToolError{Tool: tool, ExitCode: 127, StderrTail: err.Error()}
	}
	return fmt.Errorf("failed to start %s: %w", tool, err)
}

func waitError(tool string, err error, stderr *tailBuffer) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &domain.ToolError{
			Tool:       tool,
			ExitCode:   exitErr.ExitCode(),
			StderrTail: strings.TrimSpace(stderr.String()),
		}
	}
	return fmt.Errorf("%s failed: %w", tool, err)
}
