package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/domain"
)

// StalePartialAge is how old a .partial file must be before Write treats it
// as left over from an interrupted run.
const StalePartialAge = 24 * time.Hour

// LocalStorage keeps artifacts at basePath/<title>/<name>.
type LocalStorage struct {
	fs       afero.Fs
	basePath string
}

var _ domain.LocalStore = (*LocalStorage)(nil)

func NewLocal(fsys afero.Fs, basePath string) (*LocalStorage, error) {
	if err := fsys.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{fs: fsys, basePath: basePath}, nil
}

// Write streams r to a .partial file and renames it into place once r is
// exhausted. On any error the partial file is removed. Stale partial files
// in the element directory are swept first.
func (l *LocalStorage) Write(ctx context.Context, title, name string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	dir := filepath.Join(l.basePath, title)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create element directory: %w", err)
	}
	l.sweepPartials(dir, time.Now().Add(-StalePartialAge))

	destPath := filepath.Join(dir, name)
	partialPath := destPath + domain.PartialSuffix

	dest, err := l.fs.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create dest: %w", err)
	}

	n, err := io.Copy(dest, r)
	if err != nil {
		dest.Close()
		_ = l.fs.Remove(partialPath)
		return "", 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := dest.Close(); err != nil {
		_ = l.fs.Remove(partialPath)
		return "", 0, fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := l.fs.Rename(partialPath, destPath); err != nil {
		_ = l.fs.Remove(partialPath)
		return "", 0, fmt.Errorf("failed to finalize %s: %w", name, err)
	}

	return destPath, n, nil
}

func (l *LocalStorage) sweepPartials(dir string, before time.Time) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), domain.PartialSuffix) {
			continue
		}
		if entry.ModTime().Before(before) {
			// Best effort, the next write retries.
			_ = l.fs.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

func (l *LocalStorage) Open(ctx context.Context, title, name string) (io.ReadCloser, error) {
	f, err := l.fs.Open(l.GetPath(title, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

func (l *LocalStorage) Delete(ctx context.Context, title, name string) error {
	if err := l.fs.Remove(l.GetPath(title, name)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the regular files in the element's directory. A directory
// that does not exist yet holds no artifacts.
func (l *LocalStorage) List(ctx context.Context, title string) ([]domain.ObjectInfo, error) {
	entries, err := afero.ReadDir(l.fs, filepath.Join(l.basePath, title))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []domain.ObjectInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, domain.ObjectInfo{
			Name:    entry.Name(),
			ModTime: entry.ModTime(),
			Size:    entry.Size(),
		})
	}

	return files, nil
}

func (l *LocalStorage) GetPath(title, name string) string {
	return filepath.Join(l.basePath, title, name)
}
