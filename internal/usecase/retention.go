package usecase

import (
	"context"
	"time"

	"github.com/semmidev/backstow/internal/domain"
)

const day = 24 * time.Hour

// Expired reports whether an artifact captured at createdAt is past a
// window of days at now. A window of zero keeps nothing.
func Expired(now, createdAt time.Time, days int) bool {
	if days == 0 {
		return true
	}
	return now.Sub(createdAt) > time.Duration(days)*day
}

// ExpiredArtifacts filters artifacts down to those Expired under days.
func ExpiredArtifacts(artifacts []domain.Artifact, days int, now time.Time) []domain.Artifact {
	var expired []domain.Artifact
	for _, a := range artifacts {
		if Expired(now, a.CreatedAt, days) {
			expired = append(expired, a)
		}
	}
	return expired
}

// Enforcer deletes expired artifacts. The local and remote windows are
// applied independently; deleting from one store never touches the other.
type Enforcer struct {
	local  domain.LocalStore
	remote domain.RemoteStore
	logger Logger
}

func NewEnforcer(local domain.LocalStore, remote domain.RemoteStore, logger Logger) *Enforcer {
	return &Enforcer{
		local:  local,
		remote: remote,
		logger: logger,
	}
}

// Apply deletes every expired artifact and reports one outcome per
// deletion attempt. A failed deletion does not stop the others.
func (e *Enforcer) Apply(ctx context.Context, el domain.Element, local, remote []domain.Artifact, now time.Time) []domain.DeletionOutcome {
	var outcomes []domain.DeletionOutcome

	for _, a := range ExpiredArtifacts(local, el.LocalRetentionDays, now) {
		err := e.local.Delete(ctx, el.Title, a.Name)
		outcomes = append(outcomes, e.record(el.Title, domain.StoreLocal, a.Name, err))
	}

	if e.remote == nil {
		return outcomes
	}

	for _, a := range ExpiredArtifacts(remote, el.RemoteRetentionDays, now) {
		err := e.remote.Delete(ctx, a.RemoteKey)
		outcomes = append(outcomes, e.record(el.Title, domain.StoreRemote, a.RemoteKey, err))
	}

	return outcomes
}

func (e *Enforcer) record(title string, store domain.Store, name string, err error) domain.DeletionOutcome {
	if err != nil {
		err = &domain.RetentionError{Title: title, Store: store, Name: name, Err: err}
		e.logger.Warnf("[%s] %v", title, err)
		return domain.DeletionOutcome{Store: store, Name: name, Err: err}
	}

	e.logger.Infof("[%s] Deleted old %s backup: %s", title, store, name)
	return domain.DeletionOutcome{Store: store, Name: name}
}
