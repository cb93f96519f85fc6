package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/backstow/internal/domain"
)

// GDriveStorage keeps objects as files in one Drive folder. The object key,
// slashes included, is the file name.
type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

var _ domain.RemoteStore = (*GDriveStorage)(nil)

func NewGDrive(ctx context.Context, credentialsFile, folderID string) (*GDriveStorage, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: folderID,
	}, nil
}

func (g *GDriveStorage) Name() string { return "gdrive" }

func (g *GDriveStorage) Put(ctx context.Context, key string, r io.Reader) error {
	fileMetadata := &drive.File{
		Name:    key,
		Parents: []string{g.folderID},
	}

	_, err := g.service.Files.Create(fileMetadata).
		Media(r).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *GDriveStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	id, err := g.find(ctx, key)
	if err != nil {
		return nil, err
	}

	resp, err := g.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download from gdrive: %w", err)
	}
	return resp.Body, nil
}

// List filters the folder listing client-side; Drive queries have no
// prefix operator.
func (g *GDriveStorage) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(g.folderID))

	var files []domain.ObjectInfo
	err := g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, createdTime, size)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, file := range page.Files {
				if !strings.HasPrefix(file.Name, prefix) {
					continue
				}
				created, _ := time.Parse(time.RFC3339, file.CreatedTime)
				files = append(files, domain.ObjectInfo{
					Name:    file.Name,
					ModTime: created,
					Size:    file.Size,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

func (g *GDriveStorage) Delete(ctx context.Context, key string) error {
	id, err := g.find(ctx, key)
	if err != nil {
		return err
	}

	if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (g *GDriveStorage) find(ctx context.Context, key string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false",
		escapeQuery(g.folderID), escapeQuery(key))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to find file: %w", err)
	}

	if len(fileList.Files) == 0 {
		return "", fmt.Errorf("file %s: %w", key, fs.ErrNotExist)
	}

	return fileList.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
