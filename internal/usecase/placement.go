package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/backstow/internal/domain"
)

// Placement writes artifacts to the local store and, when one is
// configured, the remote store. remote is nil when there is none.
type Placement struct {
	local  domain.LocalStore
	remote domain.RemoteStore
	logger Logger
}

func NewPlacement(local domain.LocalStore, remote domain.RemoteStore, logger Logger) *Placement {
	return &Placement{
		local:  local,
		remote: remote,
		logger: logger,
	}
}

func (p *Placement) HasRemote() bool {
	return p.remote != nil
}

// Persist writes src under the element's local directory and uploads the
// result. A failed upload returns the local artifact together with a
// partial PlacementError. With a local retention of zero the local copy is
// removed once the upload is confirmed.
func (p *Placement) Persist(ctx context.Context, el domain.Element, name string, src io.Reader) (domain.Artifact, error) {
	createdAt, _, ok := domain.ParseArtifactName(el.Title, name)
	if !ok {
		return domain.Artifact{}, &domain.PlacementError{Title: el.Title, Op: "name", Err: fmt.Errorf("%q is not an artifact name", name)}
	}

	path, size, err := p.local.Write(ctx, el.Title, name, src)
	if err != nil {
		return domain.Artifact{}, &domain.PlacementError{Title: el.Title, Op: "write local", Err: err}
	}

	artifact := domain.Artifact{
		Title:     el.Title,
		Name:      name,
		CreatedAt: createdAt,
		LocalPath: path,
		Size:      size,
	}
	p.logger.Infof("[%s] Saved %s (%s)", el.Title, path, humanize.Bytes(uint64(size)))

	if p.remote == nil {
		return artifact, nil
	}

	key := domain.RemoteKey(el.RemoteFolder, name)
	if err := p.upload(ctx, el.Title, name, key); err != nil {
		return artifact, &domain.PlacementError{Title: el.Title, Op: "upload", Partial: true, Err: err}
	}
	artifact.RemoteKey = key
	p.logger.Infof("[%s] Uploaded to %s: %s", el.Title, p.remote.Name(), key)

	if el.LocalRetentionDays == 0 {
		if err := p.local.Delete(ctx, el.Title, name); err != nil {
			p.logger.Warnf("[%s] Failed to remove transient local copy: %v", el.Title, err)
		} else {
			artifact.LocalPath = ""
		}
	}

	return artifact, nil
}

func (p *Placement) upload(ctx context.Context, title, name, key string) error {
	rc, err := p.local.Open(ctx, title, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	return p.remote.Put(ctx, key, rc)
}

// Fetch opens the artifact to restore. selector is an artifact name, or
// empty for the newest one. Artifacts come from the remote store when one
// is configured, otherwise from the local store.
func (p *Placement) Fetch(ctx context.Context, el domain.Element, selector string) (io.ReadCloser, domain.Artifact, error) {
	list, open := p.ListLocal, p.openLocal
	if p.remote != nil {
		list, open = p.ListRemote, p.openRemote
	}

	artifacts, err := list(ctx, el)
	if err != nil {
		return nil, domain.Artifact{}, &domain.PlacementError{Title: el.Title, Op: "list", Err: err}
	}

	artifact, err := choose(artifacts, selector)
	if err != nil {
		return nil, domain.Artifact{}, &domain.PlacementError{Title: el.Title, Op: "fetch", Err: err}
	}

	rc, err := open(ctx, artifact)
	if err != nil {
		return nil, domain.Artifact{}, &domain.PlacementError{Title: el.Title, Op: "fetch", Err: err}
	}
	return rc, artifact, nil
}

func (p *Placement) openLocal(ctx context.Context, a domain.Artifact) (io.ReadCloser, error) {
	return p.local.Open(ctx, a.Title, a.Name)
}

func (p *Placement) openRemote(ctx context.Context, a domain.Artifact) (io.ReadCloser, error) {
	return p.remote.Get(ctx, a.RemoteKey)
}

// choose expects artifacts newest first.
func choose(artifacts []domain.Artifact, selector string) (domain.Artifact, error) {
	if selector == "" {
		if len(artifacts) == 0 {
			return domain.Artifact{}, domain.ErrNothingToRestore
		}
		return artifacts[0], nil
	}

	for _, a := range artifacts {
		if a.Name == selector {
			return a, nil
		}
	}
	return domain.Artifact{}, fmt.Errorf("artifact %s: %w", selector, domain.ErrNothingToRestore)
}

// ListLocal returns the element's local artifacts, newest first. Files
// whose names do not parse as this element's artifacts are ignored.
func (p *Placement) ListLocal(ctx context.Context, el domain.Element) ([]domain.Artifact, error) {
	files, err := p.local.List(ctx, el.Title)
	if err != nil {
		return nil, err
	}

	var artifacts []domain.Artifact
	for _, f := range files {
		createdAt, _, ok := domain.ParseArtifactName(el.Title, f.Name)
		if !ok {
			continue
		}
		artifacts = append(artifacts, domain.Artifact{
			Title:     el.Title,
			Name:      f.Name,
			CreatedAt: createdAt,
			LocalPath: p.local.GetPath(el.Title, f.Name),
			Size:      f.Size,
		})
	}

	domain.SortNewestFirst(artifacts)
	return artifacts, nil
}

// ListRemote returns the element's remote artifacts, newest first, or
// nothing when no remote store is configured.
func (p *Placement) ListRemote(ctx context.Context, el domain.Element) ([]domain.Artifact, error) {
	if p.remote == nil {
		return nil, nil
	}

	folder := domain.RemoteKey(el.RemoteFolder, "")
	objects, err := p.remote.List(ctx, folder+el.Title+"_")
	if err != nil {
		return nil, err
	}

	var artifacts []domain.Artifact
	for _, obj := range objects {
		name, found := strings.CutPrefix(obj.Name, folder)
		if !found {
			continue
		}
		createdAt, _, ok := domain.ParseArtifactName(el.Title, name)
		if !ok {
			continue
		}
		artifacts = append(artifacts, domain.Artifact{
			Title:     el.Title,
			Name:      name,
			CreatedAt: createdAt,
			RemoteKey: obj.Name,
			Size:      obj.Size,
		})
	}

	domain.SortNewestFirst(artifacts)
	return artifacts, nil
}
