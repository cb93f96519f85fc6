package compressor

import (
	"fmt"
	"io"
	"strings"

	"github.com/semmidev/backstow/internal/domain"
)

var codecs = []domain.Codec{NewGzip(), NewZstd()}

// ByName returns the codec configured under name.
func ByName(name string) (domain.Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

// ForArtifact picks the codec from an artifact name's extension.
func ForArtifact(name string) (domain.Codec, bool) {
	for _, c := range codecs {
		if strings.HasSuffix(name, c.Extension()) {
			return c, true
		}
	}
	return nil, false
}

// Compress streams src through codec. src is always closed once the copy
// ends; an error from src, including the one returned by its Close,
// surfaces as a read error on the result.
func Compress(codec domain.Codec, src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		w, err := codec.NewWriter(pw)
		if err != nil {
			src.Close()
			pw.CloseWithError(err)
			return
		}

		_, copyErr := io.Copy(w, src)
		closeErr := src.Close()
		flushErr := w.Close()

		switch {
		case copyErr != nil:
			pw.CloseWithError(copyErr)
		case closeErr != nil:
			pw.CloseWithError(closeErr)
		case flushErr != nil:
			pw.CloseWithError(fmt.Errorf("failed to compress: %w", flushErr))
		default:
			pw.Close()
		}
	}()

	return pr
}
