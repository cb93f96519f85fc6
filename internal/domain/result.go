package domain

import (
	"time"
)

type Phase string

const (
	PhaseConfig  Phase = "config"
	PhaseCapture Phase = "capture"
	PhasePlace   Phase = "place"
	PhaseRetain  Phase = "retain"
	PhaseFetch   Phase = "fetch"
	PhaseRestore Phase = "restore"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusFailed:
		return 2
	case StatusPartial:
		return 1
	default:
		return 0
	}
}

type Mode string

const (
	ModeBackup  Mode = "backup"
	ModeRestore Mode = "restore"
)

type DeletionOutcome struct {
	Store Store
	Name  string
	Err   error
}

type ElementOutcome struct {
	Title     string
	Phase     Phase
	Status    Status
	Err       error
	Artifact  *Artifact
	Deletions []DeletionOutcome
}

func (o ElementOutcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// RunResult is the outcome of one backup or restore invocation.
type RunResult struct {
	RunID      string
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []ElementOutcome
}

// Failed reports whether any outcome is not a success.
func (r RunResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusSuccess {
			return true
		}
	}
	return false
}

// ElementStatus is the worst status recorded for title, or "" when the
// title has no outcome.
func (r RunResult) ElementStatus(title string) Status {
	var status Status
	for _, o := range r.Outcomes {
		if o.Title != title {
			continue
		}
		if status == "" || o.Status.rank() > status.rank() {
			status = o.Status
		}
	}
	return status
}

// Outcome returns the outcome recorded for title in phase.
func (r RunResult) Outcome(title string, phase Phase) (ElementOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Title == title && o.Phase == phase {
			return o, true
		}
	}
	return ElementOutcome{}, false
}

// FailedTitles lists, in outcome order and without repeats, every title
// with a non-success outcome.
func (r RunResult) FailedTitles() []string {
	seen := make(map[string]bool)
	var titles []string
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess || seen[o.Title] {
			continue
		}
		seen[o.Title] = true
		titles = append(titles, o.Title)
	}
	return titles
}
