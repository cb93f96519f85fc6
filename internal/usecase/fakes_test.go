package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/adapter/storage"
	"github.com/semmidev/backstow/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

type fakeObject struct {
	data    []byte
	modTime time.Time
}

// fakeRemote is an in-memory RemoteStore.
type fakeRemote struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	putErr    error
	listErr   error
	deleteErr map[string]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string]fakeObject), deleteErr: make(map[string]error)}
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = fakeObject{data: data, modTime: time.Now()}
	return nil
}

func (f *fakeRemote) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeRemote) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []domain.ObjectInfo
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, domain.ObjectInfo{Name: key, ModTime: obj.modTime, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRemote) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	if _, ok := f.objects[key]; !ok {
		return fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeRemote) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeRemote) seed(key string, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: []byte(data), modTime: time.Now()}
}

// fakeAdapter captures a fixed payload and records what it restores.
type fakeAdapter struct {
	mu         sync.Mutex
	payload    string
	captureErr map[string]error
	closeErr   map[string]error
	restoreErr map[string]error
	restored   map[string]string
	block      bool
}

func newFakeAdapter(payload string) *fakeAdapter {
	return &fakeAdapter{
		payload:    payload,
		captureErr: make(map[string]error),
		closeErr:   make(map[string]error),
		restoreErr: make(map[string]error),
		restored:   make(map[string]string),
	}
}

func (f *fakeAdapter) Extension() string { return ".sql" }

func (f *fakeAdapter) Capture(ctx context.Context, el domain.Element) (io.ReadCloser, error) {
	f.mu.Lock()
	err, closeErr, block := f.captureErr[el.Title], f.closeErr[el.Title], f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, &domain.CaptureError{Title: el.Title, Reason: domain.ReasonIO, Err: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}

	data := strings.NewReader(f.payload + ":" + el.Title)
	if closeErr != nil {
		return failingClose{Reader: data, err: closeErr}, nil
	}
	return io.NopCloser(data), nil
}

func (f *fakeAdapter) Restore(ctx context.Context, el domain.Element, payload io.Reader) error {
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.restoreErr[el.Title]; err != nil {
		return err
	}
	f.restored[el.Title] = string(data)
	return nil
}

// failingClose produces its data, then reports a tool failure from Close
// the way an executor stream does.
type failingClose struct {
	io.Reader
	err error
}

func (f failingClose) Close() error { return f.err }

func toolFailure(title string) error {
	return &domain.CaptureError{Title: title, Reason: domain.ReasonToolFailed, ExitCode: 1, StderrTail: "boom", Err: errors.New("exit 1")}
}

func newLocal(fsys afero.Fs) *storage.LocalStorage {
	local, err := storage.NewLocal(fsys, "/backups")
	if err != nil {
		panic(err)
	}
	return local
}

func pgElement(title string, localDays, remoteDays int) domain.Element {
	return domain.Element{
		Title:               title,
		RemoteFolder:        title,
		LocalRetentionDays:  localDays,
		RemoteRetentionDays: remoteDays,
		Enabled:             true,
		Params:              domain.PostgresNative{Host: "localhost", Port: 5432, Database: title, User: "u", Password: "p"},
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
