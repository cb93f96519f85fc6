package domain

import (
	"context"
	"io"
)

// Adapter captures and restores the payload of one element kind. It never
// performs placement or retention.
type Adapter interface {
	// Extension is the uncompressed payload extension, e.g. ".sql".
	Extension() string
	Capture(ctx context.Context, el Element) (io.ReadCloser, error)
	Restore(ctx context.Context, el Element, payload io.Reader) error
}

// Codec compresses artifacts on the way to storage.
type Codec interface {
	Name() string
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}
