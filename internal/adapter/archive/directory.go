package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/domain"
)

// Directory packs a directory tree into a tar stream and unpacks it back.
// Restore overwrites files present in the archive and leaves every other
// file in the target untouched.
type Directory struct {
	fs afero.Fs
}

var _ domain.Adapter = (*Directory)(nil)

func NewDirectory(fsys afero.Fs) *Directory {
	return &Directory{fs: fsys}
}

func (d *Directory) Extension() string { return ".tar" }

func (d *Directory) Capture(ctx context.Context, el domain.Element) (io.ReadCloser, error) {
	params, ok := el.Params.(domain.Directory)
	if !ok {
		return nil, &domain.CaptureError{Title: el.Title, Reason: domain.ReasonUnsupported, Err: fmt.Errorf("directory adapter cannot handle kind %s", el.Kind())}
	}

	info, err := d.fs.Stat(params.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.CaptureError{Title: el.Title, Reason: domain.ReasonSourceNotFound, Err: fmt.Errorf("%w: %s", domain.ErrSourceNotFound, params.Path)}
		}
		return nil, &domain.CaptureError{Title: el.Title, Reason: domain.ReasonIO, Err: err}
	}
	if !info.IsDir() {
		return nil, &domain.CaptureError{Title: el.Title, Reason: domain.ReasonSourceNotFound, Err: fmt.Errorf("%w: %s is not a directory", domain.ErrSourceNotFound, params.Path)}
	}

	pr, pw := io.Pipe()
	go func() {
		err := d.pack(ctx, params.Path, pw)
		if err != nil {
			err = &domain.CaptureError{Title: el.Title, Reason: domain.ReasonIO, Err: err}
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (d *Directory) pack(ctx context.Context, root string, w io.Writer) error {
	tw := tar.NewWriter(w)

	err := afero.Walk(d.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// Symlinks and devices are skipped.
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", p, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", p, err)
		}
		if info.IsDir() {
			return nil
		}

		f, err := d.fs.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("copy %s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func (d *Directory) Restore(ctx context.Context, el domain.Element, payload io.Reader) error {
	params, ok := el.Params.(domain.Directory)
	if !ok {
		return &domain.RestoreError{Title: el.Title, Err: fmt.Errorf("directory adapter cannot restore kind %s", el.Kind())}
	}
	if err := d.unpack(ctx, params.Path, payload); err != nil {
		return &domain.RestoreError{Title: el.Title, Err: err}
	}
	return nil
}

func (d *Directory) unpack(ctx context.Context, root string, r io.Reader) error {
	if err := d.fs.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := safeJoin(root, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := d.fs.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := d.writeFile(target, os.FileMode(header.Mode).Perm(), tr); err != nil {
				return err
			}
		}
	}
}

func (d *Directory) writeFile(target string, mode os.FileMode, r io.Reader) error {
	if err := d.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	f, err := d.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}

// safeJoin rejects archive entries that would land outside root.
func safeJoin(root, name string) (string, error) {
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." {
		return root, nil
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive entry %q escapes the target directory", name)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
