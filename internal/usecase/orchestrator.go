package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/semmidev/backstow/internal/adapter/compressor"
	"github.com/semmidev/backstow/internal/domain"
)

const (
	DefaultWorkers        = 2
	DefaultElementTimeout = 6 * time.Hour
)

// Orchestrator runs the backup and restore lifecycles over a set of
// elements, isolating each element's failures from the others.
type Orchestrator struct {
	elements  []domain.Element
	rejected  []*domain.ConfigError
	adapters  map[domain.Kind]domain.Adapter
	placement *Placement
	enforcer  *Enforcer
	logger    Logger

	codec   domain.Codec
	workers int
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithElementTimeout bounds each element's lifecycle. Zero disables it.
func WithElementTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithCodec(c domain.Codec) Option {
	return func(o *Orchestrator) { o.codec = c }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunID(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithRejected records elements excluded at load time so they show up in
// every run result.
func WithRejected(errs []*domain.ConfigError) Option {
	return func(o *Orchestrator) { o.rejected = errs }
}

func NewOrchestrator(
	elements []domain.Element,
	adapters map[domain.Kind]domain.Adapter,
	placement *Placement,
	enforcer *Enforcer,
	logger Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		elements:  elements,
		adapters:  adapters,
		placement: placement,
		enforcer:  enforcer,
		logger:    logger,
		codec:     compressor.NewGzip(),
		workers:   DefaultWorkers,
		timeout:   DefaultElementTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Element looks up a configured element by title, disabled ones included.
func (o *Orchestrator) Element(title string) (domain.Element, bool) {
	for _, el := range o.elements {
		if el.Title == title {
			return el, true
		}
	}
	return domain.Element{}, false
}

// RunBackup captures, places and retains every enabled element.
func (o *Orchestrator) RunBackup(ctx context.Context) domain.RunResult {
	var targets []domain.Element
	for _, el := range o.elements {
		if el.Enabled {
			targets = append(targets, el)
		}
	}

	return o.run(ctx, domain.ModeBackup, o.rejected, targets, o.backupElement)
}

// RunRestore restores the newest artifact, or the one named by selector,
// of each titled element. No titles means every enabled element. Unknown
// titles fail on their own without stopping the rest.
func (o *Orchestrator) RunRestore(ctx context.Context, titles []string, selector string) domain.RunResult {
	restore := func(ctx context.Context, el domain.Element, emit func(domain.ElementOutcome)) {
		o.restoreElement(ctx, el, selector, emit)
	}

	if len(titles) == 0 {
		var targets []domain.Element
		for _, el := range o.elements {
			if el.Enabled {
				targets = append(targets, el)
			}
		}
		return o.run(ctx, domain.ModeRestore, o.rejected, targets, restore)
	}

	var (
		rejected []*domain.ConfigError
		targets  []domain.Element
		unknown  []string
		seen     = make(map[string]bool)
	)
	for _, title := range titles {
		if seen[title] {
			continue
		}
		seen[title] = true

		if el, ok := o.Element(title); ok {
			targets = append(targets, el)
			continue
		}
		if i := slices.IndexFunc(o.rejected, func(e *domain.ConfigError) bool { return e.Title == title }); i >= 0 {
			rejected = append(rejected, o.rejected[i])
			continue
		}
		unknown = append(unknown, title)
	}

	result := o.run(ctx, domain.ModeRestore, rejected, targets, restore)
	for _, title := range unknown {
		o.logger.Errorf("[%s] %v", title, domain.ErrUnknownTitle)
		result.Outcomes = append(result.Outcomes, domain.ElementOutcome{
			Title:  title,
			Phase:  domain.PhaseFetch,
			Status: domain.StatusFailed,
			Err:    &domain.RestoreError{Title: title, Err: domain.ErrUnknownTitle},
		})
	}
	return result
}

type indexedOutcome struct {
	index   int
	outcome domain.ElementOutcome
}

// run fans targets out over the worker pool. Workers only send on the
// outcome channel; the collector goroutine alone appends to the result.
func (o *Orchestrator) run(
	ctx context.Context,
	mode domain.Mode,
	rejected []*domain.ConfigError,
	targets []domain.Element,
	work func(context.Context, domain.Element, func(domain.ElementOutcome)),
) domain.RunResult {
	result := domain.RunResult{
		RunID:     o.newID(),
		Mode:      mode,
		StartedAt: o.now(),
	}
	o.logger.Infof("Starting %s run %s for %d element(s)", mode, result.RunID, len(targets))

	for _, cerr := range rejected {
		o.logger.Errorf("[%s] Skipped: %v", cerr.Title, cerr)
		result.Outcomes = append(result.Outcomes, domain.ElementOutcome{
			Title:  cerr.Title,
			Phase:  domain.PhaseConfig,
			Status: domain.StatusFailed,
			Err:    cerr,
		})
	}

	outcomes := make(chan indexedOutcome)
	done := make(chan []indexedOutcome)
	go func() {
		var collected []indexedOutcome
		for out := range outcomes {
			collected = append(collected, out)
		}
		done <- collected
	}()

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, el := range targets {
		g.Go(func() error {
			elCtx, cancel := o.elementContext(ctx)
			defer cancel()

			work(elCtx, el, func(out domain.ElementOutcome) {
				outcomes <- indexedOutcome{index: i, outcome: out}
			})
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	collected := <-done

	// Each element reports from one goroutine, so a stable sort on the
	// element index keeps its phases in order.
	sort.SliceStable(collected, func(a, b int) bool {
		return collected[a].index < collected[b].index
	})
	for _, out := range collected {
		result.Outcomes = append(result.Outcomes, out.outcome)
	}

	result.FinishedAt = o.now()
	if failed := result.FailedTitles(); len(failed) > 0 {
		o.logger.Warnf("Finished %s run %s in %s, failed: %v", mode, result.RunID,
			result.FinishedAt.Sub(result.StartedAt).Round(time.Second), failed)
	} else {
		o.logger.Infof("Finished %s run %s in %s", mode, result.RunID,
			result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
	}
	return result
}

func (o *Orchestrator) elementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) backupElement(ctx context.Context, el domain.Element, emit func(domain.ElementOutcome)) {
	fail := func(phase domain.Phase, err error) {
		o.logger.Errorf("[%s] %s failed: %v", el.Title, phase, err)
		emit(domain.ElementOutcome{Title: el.Title, Phase: phase, Status: domain.StatusFailed, Err: err})
	}

	adapter, ok := o.adapters[el.Kind()]
	if !ok {
		fail(domain.PhaseCapture, &domain.CaptureError{
			Title:  el.Title,
			Reason: domain.ReasonUnsupported,
			Err:    fmt.Errorf("no adapter for kind %s", el.Kind()),
		})
		return
	}

	start := o.now()
	createdAt := start.UTC().Truncate(time.Second)
	name := domain.ArtifactName(el.Title, createdAt, adapter.Extension()+o.codec.Extension())
	o.logger.Infof("[%s] Starting backup...", el.Title)

	src, err := adapter.Capture(ctx, el)
	if err != nil {
		fail(domain.PhaseCapture, err)
		return
	}

	stream := compressor.Compress(o.codec, src)
	artifact, err := o.placement.Persist(ctx, el, name, stream)
	stream.Close()

	var captureErr *domain.CaptureError
	var placeErr *domain.PlacementError
	switch {
	case errors.As(err, &captureErr):
		fail(domain.PhaseCapture, captureErr)
		return
	case errors.As(err, &placeErr) && placeErr.Partial:
		o.logger.Warnf("[%s] Kept local copy only: %v", el.Title, err)
		emit(domain.ElementOutcome{Title: el.Title, Phase: domain.PhasePlace, Status: domain.StatusPartial, Err: err, Artifact: &artifact})
	case err != nil:
		fail(domain.PhasePlace, err)
		return
	default:
		emit(domain.ElementOutcome{Title: el.Title, Phase: domain.PhasePlace, Status: domain.StatusSuccess, Artifact: &artifact})
	}

	o.retain(ctx, el, artifact, emit)
	o.logger.Infof("[%s] Backup completed in %s: %s", el.Title, o.now().Sub(start).Round(time.Second), name)
}

func (o *Orchestrator) retain(ctx context.Context, el domain.Element, fresh domain.Artifact, emit func(domain.ElementOutcome)) {
	// Each store is evaluated on its own. A listing failure on one side
	// still lets the other side's window run.
	var errs []error

	local, err := o.placement.ListLocal(ctx, el)
	if err != nil {
		err = &domain.PlacementError{Title: el.Title, Op: "list local", Err: err}
		o.logger.Errorf("[%s] retain failed: %v", el.Title, err)
		errs = append(errs, err)
		local = nil
	}
	remote, err := o.placement.ListRemote(ctx, el)
	if err != nil {
		err = &domain.PlacementError{Title: el.Title, Op: "list remote", Err: err}
		o.logger.Errorf("[%s] retain failed: %v", el.Title, err)
		errs = append(errs, err)
		remote = nil
	}

	// With a local window of zero the fresh artifact would be deleted even
	// though no remote copy exists.
	if el.LocalRetentionDays == 0 && fresh.RemoteKey == "" {
		o.logger.Warnf("[%s] Keeping %s locally until a remote copy exists", el.Title, fresh.Name)
		local = slices.DeleteFunc(local, func(a domain.Artifact) bool { return a.Name == fresh.Name })
	}

	deletions := o.enforcer.Apply(ctx, el, local, remote, o.now())
	for _, d := range deletions {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}

	outcome := domain.ElementOutcome{Title: el.Title, Phase: domain.PhaseRetain, Status: domain.StatusSuccess, Deletions: deletions}
	if len(errs) > 0 {
		outcome.Status = domain.StatusFailed
		outcome.Err = errors.Join(errs...)
	}
	emit(outcome)
}

func (o *Orchestrator) restoreElement(ctx context.Context, el domain.Element, selector string, emit func(domain.ElementOutcome)) {
	fail := func(phase domain.Phase, err error) {
		var restoreErr *domain.RestoreError
		if !errors.As(err, &restoreErr) {
			err = &domain.RestoreError{Title: el.Title, Err: err}
		}
		o.logger.Errorf("[%s] %s failed: %v", el.Title, phase, err)
		emit(domain.ElementOutcome{Title: el.Title, Phase: phase, Status: domain.StatusFailed, Err: err})
	}

	adapter, ok := o.adapters[el.Kind()]
	if !ok {
		fail(domain.PhaseRestore, fmt.Errorf("no adapter for kind %s", el.Kind()))
		return
	}

	start := o.now()
	o.logger.Infof("[%s] Starting restore...", el.Title)

	rc, artifact, err := o.placement.Fetch(ctx, el, selector)
	if err != nil {
		fail(domain.PhaseFetch, err)
		return
	}
	defer rc.Close()
	o.logger.Infof("[%s] Restoring %s (%s)", el.Title, artifact.Name, o.source())

	payload := io.Reader(rc)
	if codec, ok := compressor.ForArtifact(artifact.Name); ok {
		dec, err := codec.NewReader(rc)
		if err != nil {
			fail(domain.PhaseFetch, fmt.Errorf("failed to open %s: %w", artifact.Name, err))
			return
		}
		defer dec.Close()
		payload = dec
	}

	if err := adapter.Restore(ctx, el, payload); err != nil {
		fail(domain.PhaseRestore, err)
		return
	}

	emit(domain.ElementOutcome{Title: el.Title, Phase: domain.PhaseRestore, Status: domain.StatusSuccess, Artifact: &artifact})
	o.logger.Infof("[%s] Restore completed in %s", el.Title, o.now().Sub(start).Round(time.Second))
}

func (o *Orchestrator) source() string {
	if o.placement.HasRemote() {
		return "remote"
	}
	return "local"
}
