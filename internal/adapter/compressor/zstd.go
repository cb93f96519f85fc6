package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

type ZstdCompressor struct{}

func NewZstd() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (z *ZstdCompressor) Name() string      { return "zstd" }
func (z *ZstdCompressor) Extension() string { return ".zst" }

func (z *ZstdCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	writer, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return writer, nil
}

func (z *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return decoder.IOReadCloser(), nil
}
