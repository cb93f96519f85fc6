package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/adapter/archive"
	"github.com/semmidev/backstow/internal/adapter/compressor"
	"github.com/semmidev/backstow/internal/domain"
)

type harness struct {
	fsys      afero.Fs
	local     domain.LocalStore
	remote    *fakeRemote
	adapter   *fakeAdapter
	clock     *clock
	placement *Placement
	enforcer  *Enforcer
}

func newHarness(withRemote bool) *harness {
	h := &harness{
		fsys:    afero.NewMemMapFs(),
		adapter: newFakeAdapter("dump"),
		clock:   &clock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	h.local = newLocal(h.fsys)

	var remote domain.RemoteStore
	if withRemote {
		h.remote = newFakeRemote()
		remote = h.remote
	}
	h.placement = NewPlacement(h.local, remote, nopLogger{})
	h.enforcer = NewEnforcer(h.local, remote, nopLogger{})
	return h
}

func (h *harness) orchestrator(elements []domain.Element, opts ...Option) *Orchestrator {
	adapters := map[domain.Kind]domain.Adapter{
		domain.KindPostgresNative: h.adapter,
		domain.KindDirectory:      archive.NewDirectory(h.fsys),
	}
	opts = append([]Option{
		WithClock(h.clock.Now),
		WithRunID(func() string { return "run-1" }),
	}, opts...)
	return NewOrchestrator(elements, adapters, h.placement, h.enforcer, nopLogger{}, opts...)
}

func statuses(result domain.RunResult, titles ...string) []domain.Status {
	var out []domain.Status
	for _, title := range titles {
		out = append(out, result.ElementStatus(title))
	}
	return out
}

func TestOrchestratorBackup(t *testing.T) {
	Convey("Given three elements where the second one's capture fails", t, func() {
		h := newHarness(true)
		elements := []domain.Element{pgElement("one", 7, 30), pgElement("two", 7, 30), pgElement("three", 7, 30)}
		h.adapter.captureErr["two"] = toolFailure("two")

		for _, workers := range []int{1, 3} {
			Convey(fmt.Sprintf("With %d worker(s)", workers), func() {
				result := h.orchestrator(elements, WithWorkers(workers)).RunBackup(context.Background())

				Convey("The other elements should succeed", func() {
					So(statuses(result, "one", "two", "three"), ShouldResemble,
						[]domain.Status{domain.StatusSuccess, domain.StatusFailed, domain.StatusSuccess})
					So(result.FailedTitles(), ShouldResemble, []string{"two"})
					So(result.Failed(), ShouldBeTrue)
					So(result.RunID, ShouldEqual, "run-1")
					So(result.Mode, ShouldEqual, domain.ModeBackup)
				})

				Convey("The failure should be recorded in the capture phase only", func() {
					o, ok := result.Outcome("two", domain.PhaseCapture)
					So(ok, ShouldBeTrue)
					var captureErr *domain.CaptureError
					So(errors.As(o.Err, &captureErr), ShouldBeTrue)
					So(captureErr.Reason, ShouldEqual, domain.ReasonToolFailed)

					_, placed := result.Outcome("two", domain.PhasePlace)
					So(placed, ShouldBeFalse)
					_, retained := result.Outcome("two", domain.PhaseRetain)
					So(retained, ShouldBeFalse)
				})

				Convey("Outcomes should follow configuration order with phases in order", func() {
					var got []string
					for _, o := range result.Outcomes {
						got = append(got, o.Title+"/"+string(o.Phase))
					}
					So(got, ShouldResemble, []string{
						"one/place", "one/retain", "two/capture", "three/place", "three/retain",
					})
				})

				Convey("Only the successful elements should have artifacts", func() {
					So(h.remote.keys(), ShouldResemble, []string{
						"one/one_20250102_030405.sql.gz",
						"three/three_20250102_030405.sql.gz",
					})
					files, _ := h.local.List(context.Background(), "two")
					So(files, ShouldBeEmpty)
				})
			})
		}
	})

	Convey("Given a capture that fails when its stream is closed", t, func() {
		h := newHarness(true)
		h.adapter.closeErr["app"] = toolFailure("app")
		result := h.orchestrator([]domain.Element{pgElement("app", 7, 30)}).RunBackup(context.Background())

		Convey("It should be a capture failure with no artifact left behind", func() {
			o, ok := result.Outcome("app", domain.PhaseCapture)
			So(ok, ShouldBeTrue)
			So(o.Status, ShouldEqual, domain.StatusFailed)

			files, _ := afero.ReadDir(h.fsys, "/backups/app")
			So(files, ShouldBeEmpty)
			So(h.remote.keys(), ShouldBeEmpty)
		})
	})

	Convey("Given an upload failure", t, func() {
		h := newHarness(true)
		h.remote.putErr = errors.New("network down")
		result := h.orchestrator([]domain.Element{pgElement("app", 0, 30)}).RunBackup(context.Background())

		Convey("Placement should be partial and the only copy kept", func() {
			o, ok := result.Outcome("app", domain.PhasePlace)
			So(ok, ShouldBeTrue)
			So(o.Status, ShouldEqual, domain.StatusPartial)
			So(o.Artifact, ShouldNotBeNil)

			retain, ok := result.Outcome("app", domain.PhaseRetain)
			So(ok, ShouldBeTrue)
			So(retain.Status, ShouldEqual, domain.StatusSuccess)

			files, _ := h.local.List(context.Background(), "app")
			So(files, ShouldHaveLength, 1)
			So(result.ElementStatus("app"), ShouldEqual, domain.StatusPartial)
		})
	})

	Convey("Given a remote outage during upload and listing", t, func() {
		h := newHarness(true)
		h.remote.putErr = errors.New("network down")
		h.remote.listErr = errors.New("network down")
		old := domain.ArtifactName("app", h.clock.Now().Add(-10*day), ".sql.gz")
		afero.WriteFile(h.fsys, "/backups/app/"+old, []byte("old"), 0o644)

		result := h.orchestrator([]domain.Element{pgElement("app", 1, 30)}).RunBackup(context.Background())

		Convey("Local retention should still run", func() {
			retain, ok := result.Outcome("app", domain.PhaseRetain)
			So(ok, ShouldBeTrue)
			So(retain.Status, ShouldEqual, domain.StatusFailed)
			var placeErr *domain.PlacementError
			So(errors.As(retain.Err, &placeErr), ShouldBeTrue)
			So(placeErr.Op, ShouldEqual, "list remote")

			So(retain.Deletions, ShouldHaveLength, 1)
			So(retain.Deletions[0].Store, ShouldEqual, domain.StoreLocal)
			So(retain.Deletions[0].Name, ShouldEqual, old)

			files, _ := h.local.List(context.Background(), "app")
			So(files, ShouldHaveLength, 1)
			So(files[0].Name, ShouldEqual, "app_20250102_030405.sql.gz")
		})
	})

	Convey("Given no remote store and a local retention of zero", t, func() {
		h := newHarness(false)
		el := pgElement("app", 0, 0)
		old := domain.ArtifactName("app", h.clock.Now().Add(-day), ".sql.gz")
		afero.WriteFile(h.fsys, "/backups/app/"+old, []byte("old"), 0o644)

		result := h.orchestrator([]domain.Element{el}).RunBackup(context.Background())

		Convey("The fresh artifact should be kept and older ones deleted", func() {
			So(result.Failed(), ShouldBeFalse)
			files, _ := h.local.List(context.Background(), "app")
			So(files, ShouldHaveLength, 1)
			So(files[0].Name, ShouldEqual, "app_20250102_030405.sql.gz")
		})
	})

	Convey("Given a remote retention of zero", t, func() {
		h := newHarness(true)
		result := h.orchestrator([]domain.Element{pgElement("app", 7, 0)}).RunBackup(context.Background())

		Convey("The upload should happen and then be expired in the same run", func() {
			o, _ := result.Outcome("app", domain.PhasePlace)
			So(o.Artifact.RemoteKey, ShouldEqual, "app/app_20250102_030405.sql.gz")

			retain, _ := result.Outcome("app", domain.PhaseRetain)
			So(retain.Deletions, ShouldHaveLength, 1)
			So(retain.Deletions[0].Store, ShouldEqual, domain.StoreRemote)
			So(h.remote.keys(), ShouldBeEmpty)
		})
	})

	Convey("Given a failing remote deletion", t, func() {
		h := newHarness(true)
		h.remote.deleteErr["app/app_20250102_030405.sql.gz"] = errors.New("access denied")
		result := h.orchestrator([]domain.Element{pgElement("app", 7, 0)}).RunBackup(context.Background())

		Convey("The retain phase should fail with a retention error", func() {
			retain, _ := result.Outcome("app", domain.PhaseRetain)
			So(retain.Status, ShouldEqual, domain.StatusFailed)
			var retErr *domain.RetentionError
			So(errors.As(retain.Err, &retErr), ShouldBeTrue)
		})
	})

	Convey("Given rejected and disabled elements", t, func() {
		h := newHarness(true)
		disabled := pgElement("off", 7, 30)
		disabled.Enabled = false
		rejected := []*domain.ConfigError{{Title: "bad", Reason: "backup_retention_days must be >= 0, got -1"}}

		result := h.orchestrator([]domain.Element{pgElement("app", 7, 30), disabled}, WithRejected(rejected)).
			RunBackup(context.Background())

		Convey("The rejected element should fail in the config phase", func() {
			o, ok := result.Outcome("bad", domain.PhaseConfig)
			So(ok, ShouldBeTrue)
			So(o.Status, ShouldEqual, domain.StatusFailed)
			So(result.Outcomes[0].Title, ShouldEqual, "bad")
		})

		Convey("The disabled element should be skipped", func() {
			So(result.ElementStatus("off"), ShouldEqual, domain.Status(""))
			So(result.ElementStatus("app"), ShouldEqual, domain.StatusSuccess)
		})
	})

	Convey("Given an element that hangs", t, func() {
		h := newHarness(true)
		h.adapter.block = true
		result := h.orchestrator([]domain.Element{pgElement("app", 7, 30)}, WithElementTimeout(20*time.Millisecond)).
			RunBackup(context.Background())

		Convey("The element timeout should end it as a capture failure", func() {
			o, ok := result.Outcome("app", domain.PhaseCapture)
			So(ok, ShouldBeTrue)
			So(errors.Is(o.Err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestOrchestratorRestore(t *testing.T) {
	Convey("Given backed up elements", t, func() {
		ctx := context.Background()
		h := newHarness(true)
		disabled := pgElement("off", 7, 30)
		disabled.Enabled = false
		elements := []domain.Element{pgElement("one", 7, 30), pgElement("two", 7, 30), disabled}

		o := h.orchestrator(elements)
		So(o.RunBackup(ctx).Failed(), ShouldBeFalse)

		Convey("Restore-selected with an unknown title should not stop the others", func() {
			result := o.RunRestore(ctx, []string{"one", "ghost", "two"}, "")

			So(statuses(result, "one", "ghost", "two"), ShouldResemble,
				[]domain.Status{domain.StatusSuccess, domain.StatusFailed, domain.StatusSuccess})
			ghost, ok := result.Outcome("ghost", domain.PhaseFetch)
			So(ok, ShouldBeTrue)
			So(errors.Is(ghost.Err, domain.ErrUnknownTitle), ShouldBeTrue)

			So(h.adapter.restored["one"], ShouldEqual, "dump:one")
			So(h.adapter.restored["two"], ShouldEqual, "dump:two")
		})

		Convey("Restore-all should skip disabled elements", func() {
			result := o.RunRestore(ctx, nil, "")
			So(result.Failed(), ShouldBeFalse)
			So(result.ElementStatus("off"), ShouldEqual, domain.Status(""))
			So(h.adapter.restored, ShouldHaveLength, 2)
		})

		Convey("A disabled element should still be attempted by explicit title", func() {
			result := o.RunRestore(ctx, []string{"off"}, "")
			So(result.Failed(), ShouldBeTrue)
			fetch, _ := result.Outcome("off", domain.PhaseFetch)
			So(errors.Is(fetch.Err, domain.ErrNothingToRestore), ShouldBeTrue)
		})

		Convey("A selector should restore that exact artifact", func() {
			h.clock.Advance(time.Hour)
			h.adapter.payload = "newer"
			So(o.RunBackup(ctx).Failed(), ShouldBeFalse)

			result := o.RunRestore(ctx, []string{"one"}, "one_20250102_030405.sql.gz")
			So(result.Failed(), ShouldBeFalse)
			So(h.adapter.restored["one"], ShouldEqual, "dump:one")

			result = o.RunRestore(ctx, []string{"one"}, "")
			So(result.Failed(), ShouldBeFalse)
			So(h.adapter.restored["one"], ShouldEqual, "newer:one")
		})

		Convey("A restore tool failure should be a restore phase failure", func() {
			h.adapter.restoreErr["two"] = errors.New("psql exited with code 3")
			result := o.RunRestore(ctx, []string{"two"}, "")

			r, ok := result.Outcome("two", domain.PhaseRestore)
			So(ok, ShouldBeTrue)
			var restoreErr *domain.RestoreError
			So(errors.As(r.Err, &restoreErr), ShouldBeTrue)
		})

		Convey("Artifacts written with another codec should still restore", func() {
			h.clock.Advance(time.Hour)
			h.adapter.payload = "zstd"
			zstd := h.orchestrator(elements, WithCodec(compressor.NewZstd()))
			So(zstd.RunBackup(ctx).Failed(), ShouldBeFalse)

			result := o.RunRestore(ctx, []string{"one"}, "")
			So(result.Failed(), ShouldBeFalse)
			So(h.adapter.restored["one"], ShouldEqual, "zstd:one")
		})
	})
}

func TestOrchestratorDirectoryEndToEnd(t *testing.T) {
	Convey("Given a directory element kept 30 days locally and 90 remotely", t, func() {
		ctx := context.Background()
		h := newHarness(true)
		afero.WriteFile(h.fsys, "/srv/files/a.txt", []byte("alpha"), 0o644)
		afero.WriteFile(h.fsys, "/srv/files/sub/b.txt", []byte("beta"), 0o644)

		el := domain.Element{
			Title:               "files",
			RemoteFolder:        "files",
			LocalRetentionDays:  30,
			RemoteRetentionDays: 90,
			Enabled:             true,
			Params:              domain.Directory{Path: "/srv/files"},
		}
		o := h.orchestrator([]domain.Element{el})

		result := o.RunBackup(ctx)
		So(result.Failed(), ShouldBeFalse)

		nameRe := regexp.MustCompile(`^files_\d{8}_\d{6}\.tar\.gz$`)

		Convey("Backup should leave exactly one artifact in each store", func() {
			local, err := h.placement.ListLocal(ctx, el)
			So(err, ShouldBeNil)
			So(local, ShouldHaveLength, 1)
			So(nameRe.MatchString(local[0].Name), ShouldBeTrue)

			remote, err := h.placement.ListRemote(ctx, el)
			So(err, ShouldBeNil)
			So(remote, ShouldHaveLength, 1)
			So(remote[0].Name, ShouldEqual, local[0].Name)
		})

		Convey("After 31 days retention should drop only the local copy", func() {
			h.clock.Advance(31 * day)

			local, _ := h.placement.ListLocal(ctx, el)
			remote, _ := h.placement.ListRemote(ctx, el)
			outcomes := h.enforcer.Apply(ctx, el, local, remote, h.clock.Now())
			So(outcomes, ShouldHaveLength, 1)
			So(outcomes[0].Err, ShouldBeNil)

			local, _ = h.placement.ListLocal(ctx, el)
			remote, _ = h.placement.ListRemote(ctx, el)
			So(local, ShouldBeEmpty)
			So(remote, ShouldHaveLength, 1)

			Convey("And the remote copy should still restore the directory", func() {
				So(h.fsys.RemoveAll("/srv/files"), ShouldBeNil)

				result := o.RunRestore(ctx, []string{"files"}, "")
				So(result.Failed(), ShouldBeFalse)

				data, err := afero.ReadFile(h.fsys, "/srv/files/sub/b.txt")
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "beta")
			})
		})
	})
}
