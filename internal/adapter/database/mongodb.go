package database

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/domain"
)

// MongoDBDatabase streams mongodump archives and replays them with
// mongorestore --drop, which replaces every collection in the archive.
// Native tools read the password from a --config file on fsys.
type MongoDBDatabase struct {
	executor domain.Executor
	fs       afero.Fs
}

var _ domain.Adapter = (*MongoDBDatabase)(nil)

func NewMongoDB(executor domain.Executor, fsys afero.Fs) *MongoDBDatabase {
	return &MongoDBDatabase{executor: executor, fs: fsys}
}

func (m *MongoDBDatabase) Extension() string { return ".archive" }

func (m *MongoDBDatabase) Capture(ctx context.Context, el domain.Element) (io.ReadCloser, error) {
	switch el.Params.(type) {
	case domain.MongoNative, domain.MongoContainer:
	default:
		return nil, unsupported(el, "mongodb")
	}

	cmd, cleanup, err := m.command(el, "mongodump", []string{"--archive"})
	if err != nil {
		return nil, captureError(el.Title, err)
	}
	rc, err := m.executor.Stream(ctx, cmd)
	if err != nil {
		cleanup()
		return nil, captureError(el.Title, err)
	}
	return openDump(el.Title, cleanupStream{ReadCloser: rc, cleanup: cleanup}, nil)
}

func (m *MongoDBDatabase) Restore(ctx context.Context, el domain.Element, payload io.Reader) error {
	args := []string{"--archive", "--drop"}
	if db := database(el); db != "" {
		args = append(args, fmt.Sprintf("--nsInclude=%s.*", db))
	}

	cmd, cleanup, err := m.command(el, "mongorestore", args)
	if err != nil {
		return restoreError(el.Title, err)
	}
	defer cleanup()
	return restoreError(el.Title, m.executor.Feed(ctx, cmd, payload))
}

// command builds the tool invocation. cleanup removes any credentials
// file it wrote and is safe to call more than once.
func (m *MongoDBDatabase) command(el domain.Element, tool string, args []string) (domain.Command, func(), error) {
	cleanup := func() {}

	switch params := el.Params.(type) {
	case domain.MongoNative:
		args = append(args, fmt.Sprintf("--uri=%s", mongoURI(params)))
		if params.User != "" && params.Password != "" {
			path, err := m.writeConfig(params.Password)
			if err != nil {
				return domain.Command{}, cleanup, err
			}
			var once sync.Once
			cleanup = func() { once.Do(func() { _ = m.fs.Remove(path) }) }
			args = append(args, fmt.Sprintf("--config=%s", path))
		}
		if tool == "mongodump" && params.Database != "" {
			args = append(args, fmt.Sprintf("--db=%s", params.Database))
		}
		return domain.Command{Name: tool, Args: args}, cleanup, nil

	case domain.MongoContainer:
		if params.User != "" {
			args = append(args,
				fmt.Sprintf("--username=%s", params.User),
				fmt.Sprintf("--password=%s", params.Password),
				fmt.Sprintf("--authenticationDatabase=%s", authDatabase(params.AuthDatabase)),
			)
		}
		if tool == "mongodump" && params.Database != "" {
			args = append(args, fmt.Sprintf("--db=%s", params.Database))
		}
		return domain.Command{Container: params.Container, Name: tool, Args: args}, cleanup, nil

	default:
		return domain.Command{}, cleanup, fmt.Errorf("mongodb adapter cannot handle kind %s", el.Kind())
	}
}

// writeConfig stores the password in a 0600 YAML file for the tools'
// --config flag.
func (m *MongoDBDatabase) writeConfig(password string) (string, error) {
	f, err := afero.TempFile(m.fs, "", "backstow-mongo-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create mongo config: %w", err)
	}
	_, err = fmt.Fprintf(f, "password: %s\n", strconv.Quote(password))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = m.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to write mongo config: %w", err)
	}
	return f.Name(), nil
}

type cleanupStream struct {
	io.ReadCloser
	cleanup func()
}

func (s cleanupStream) Close() error {
	defer s.cleanup()
	return s.ReadCloser.Close()
}

func mongoURI(p domain.MongoNative) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/",
	}
	if p.User != "" {
		u.User = url.User(p.User)
		u.RawQuery = url.Values{"authSource": {authDatabase(p.AuthDatabase)}}.Encode()
	}
	return u.String()
}

func authDatabase(name string) string {
	if name == "" {
		return "admin"
	}
	return name
}

func database(el domain.Element) string {
	switch params := el.Params.(type) {
	case domain.MongoNative:
		return params.Database
	case domain.MongoContainer:
		return params.Database
	}
	return ""
}
