package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/semmidev/backstow/internal/domain"
)

// Docker runs tools inside a running container through the exec API.
type Docker struct {
	client   *client.Client
	tailSize int
}

func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return NewDockerWithClient(cli), nil
}

func NewDockerWithClient(cli *client.Client) *Docker {
	return &Docker{client: cli, tailSize: StderrTailSize}
}

func (d *Docker) Close() error {
	return d.client.Close()
}

func (d *Docker) Stream(ctx context.Context, cmd domain.Command) (io.ReadCloser, error) {
	if err := d.ensureRunning(ctx, cmd.Container); err != nil {
		return nil, err
	}

	created, err := d.client.ContainerExecCreate(ctx, cmd.Container, container.ExecOptions{
		Cmd:          append([]string{cmd.Name}, cmd.Args...),
		Env:          cmd.Env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, d.translate(cmd.Container, err, "failed to create exec")
	}

	resp, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, d.translate(cmd.Container, err, "failed to attach exec")
	}
	// The hijacked connection ignores ctx once dialed.
	stop := context.AfterFunc(ctx, resp.Close)

	pr, pw := io.Pipe()
	stderr := newTailBuffer(d.tailSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, err := stdcopy.StdCopy(pw, stderr, resp.Reader)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
		}
		pw.CloseWithError(err)
	}()

	return &execStream{
		docker: d,
		ctx:    ctx,
		execID: created.ID,
		tool:   cmd.Name,
		out:    pr,
		stderr: stderr,
		done:   done,
		release: func() {
			stop()
			resp.Close()
		},
	}, nil
}

func (d *Docker) Feed(ctx context.Context, cmd domain.Command, stdin io.Reader) error {
	if err := d.ensureRunning(ctx, cmd.Container); err != nil {
		return err
	}

	created, err := d.client.ContainerExecCreate(ctx, cmd.Container, container.ExecOptions{
		Cmd:          append([]string{cmd.Name}, cmd.Args...),
		Env:          cmd.Env,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return d.translate(cmd.Container, err, "failed to create exec")
	}

	resp, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return d.translate(cmd.Container, err, "failed to attach exec")
	}
	stop := context.AfterFunc(ctx, resp.Close)
	defer stop()

	stdinErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(resp.Conn, stdin)
		if closeErr := resp.CloseWrite(); err == nil {
			err = closeErr
		}
		stdinErr <- err
	}()

	stderr := newTailBuffer(d.tailSize)
	_, readErr := stdcopy.StdCopy(io.Discard, stderr, resp.Reader)
	resp.Close()
	sendErr := <-stdinErr

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s interrupted: %w", cmd.Name, err)
	}
	// A tool that exits early breaks the input pipe. Its exit code is the
	// more useful error.
	if err := d.exitStatus(ctx, created.ID, cmd.Name, stderr); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("failed to read %s output: %w", cmd.Name, readErr)
	}
	if sendErr != nil {
		return fmt.Errorf("failed to send input to %s: %w", cmd.Name, sendErr)
	}
	return nil
}

func (d *Docker) ensureRunning(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: no container name given", domain.ErrContainerUnavailable)
	}

	info, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return d.translate(name, err, "failed to inspect container")
	}
	if info.State == nil || !info.State.Running {
		return fmt.Errorf("%w: %s is not running", domain.ErrContainerUnavailable, name)
	}
	return nil
}

// exitStatus waits for the exec to leave the running state. The stream can
// end slightly before the daemon records the exit code.
func (d *Docker) exitStatus(ctx context.Context, execID, tool string, stderr *tailBuffer) error {
	for {
		inspect, err := d.client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return fmt.Errorf("failed to inspect exec of %s: %w", tool, err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return &domain.ToolError{
					Tool:       tool,
					ExitCode:   inspect.ExitCode,
					StderrTail: strings.TrimSpace(stderr.String()),
				}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", tool, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (d *Docker) translate(name string, err error, msg string) error {
	if errdefs.IsNotFound(err) || errdefs.IsConflict(err) {
		return fmt.Errorf("%w: %s: %v", domain.ErrContainerUnavailable, name, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

type execStream struct {
	docker  *Docker
	ctx     context.Context
	execID  string
	tool    string
	out     *io.PipeReader
	stderr  *tailBuffer
	done    chan struct{}
	release func()

	once sync.Once
	err  error
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

func (s *execStream) Close() error {
	s.once.Do(func() {
		s.out.Close()
		s.release()
		<-s.done
		s.err = s.docker.exitStatus(s.ctx, s.execID, s.tool, s.stderr)
	})
	return s.err
}
