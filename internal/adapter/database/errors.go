package database

import (
	"errors"
	"io"

	"github.com/semmidev/backstow/internal/domain"
)

func captureError(title string, err error) error {
	if err == nil {
		return nil
	}

	var toolErr *domain.ToolError
	switch {
	case errors.As(err, &toolErr):
		return &domain.CaptureError{
			Title:      title,
			Reason:     domain.ReasonToolFailed,
			ExitCode:   toolErr.ExitCode,
			StderrTail: toolErr.StderrTail,
			Err:        err,
		}
	case errors.Is(err, domain.ErrContainerUnavailable):
		return &domain.CaptureError{Title: title, Reason: domain.ReasonContainerUnavailable, Err: err}
	default:
		return &domain.CaptureError{Title: title, Reason: domain.ReasonIO, Err: err}
	}
}

func restoreError(title string, err error) error {
	if err == nil {
		return nil
	}

	restoreErr := &domain.RestoreError{Title: title, Err: err}
	var toolErr *domain.ToolError
	if errors.As(err, &toolErr) {
		restoreErr.ExitCode = toolErr.ExitCode
	}
	return restoreErr
}

func unsupported(el domain.Element, adapter string) error {
	return &domain.CaptureError{
		Title:  el.Title,
		Reason: domain.ReasonUnsupported,
		Err:    errors.New(adapter + " adapter cannot handle kind " + string(el.Kind())),
	}
}

// dumpStream turns tool failures reported by Close into capture errors.
type dumpStream struct {
	io.ReadCloser
	title string
}

func (s dumpStream) Close() error {
	return captureError(s.title, s.ReadCloser.Close())
}

func openDump(title string, rc io.ReadCloser, err error) (io.ReadCloser, error) {
	if err != nil {
		return nil, captureError(title, err)
	}
	return dumpStream{ReadCloser: rc, title: title}, nil
}
