package domain

import (
	"context"
	"io"
	"time"
)

type Store string

const (
	StoreLocal  Store = "local"
	StoreRemote Store = "remote"
)

type ObjectInfo struct {
	Name    string
	ModTime time.Time
	Size    int64
}

// LocalStore keeps artifacts under one subdirectory per element title.
type LocalStore interface {
	// Write stores r as title/name. Nothing is left behind unless r is
	// read to EOF without error.
	Write(ctx context.Context, title, name string, r io.Reader) (path string, size int64, err error)
	Open(ctx context.Context, title, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, title, name string) error
	List(ctx context.Context, title string) ([]ObjectInfo, error)
	GetPath(title, name string) string
}

// RemoteStore is an object store. Names returned by List are full keys.
type RemoteStore interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
