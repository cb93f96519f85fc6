package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNothingToRestore     = errors.New("nothing to restore")
	ErrUnknownTitle         = errors.New("unknown element title")
	ErrContainerUnavailable = errors.New("container not found or not running")
	ErrSourceNotFound       = errors.New("source not found")
)

// ConfigError excludes one element from the run.
type ConfigError struct {
	Title  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Title == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config %q: %s", e.Title, e.Reason)
}

type CaptureReason string

const (
	ReasonToolFailed           CaptureReason = "tool_failed"
	ReasonContainerUnavailable CaptureReason = "container_unavailable"
	ReasonSourceNotFound       CaptureReason = "source_not_found"
	ReasonUnsupported          CaptureReason = "unsupported"
	ReasonIO                   CaptureReason = "io"
)

// CaptureError is a failure producing the backup payload. ExitCode and
// StderrTail are set for ReasonToolFailed.
type CaptureError struct {
	Title      string
	Reason     CaptureReason
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *CaptureError) Error() string {
	switch e.Reason {
	case ReasonToolFailed:
		return fmt.Sprintf("capture %q: tool exited with code %d: %s", e.Title, e.ExitCode, e.StderrTail)
	default:
		return fmt.Sprintf("capture %q: %s: %v", e.Title, e.Reason, e.Err)
	}
}

func (e *CaptureError) Unwrap() error { return e.Err }

// PlacementError is a failure writing, uploading, listing or fetching an
// artifact. Partial is set when the local copy was written but the upload
// did not succeed.
type PlacementError struct {
	Title   string
	Op      string
	Partial bool
	Err     error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement %q: %s: %v", e.Title, e.Op, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// RetentionError is one failed deletion.
type RetentionError struct {
	Title string
	Store Store
	Name  string
	Err   error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention %q: delete %s artifact %s: %v", e.Title, e.Store, e.Name, e.Err)
}

func (e *RetentionError) Unwrap() error { return e.Err }

// RestoreError is a failure fetching or replaying an artifact. ExitCode
// is set when a restore tool exited non-zero.
type RestoreError struct {
	Title    string
	ExitCode int
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %q: %v", e.Title, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
