package compressor

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type failingCloser struct {
	io.Reader
	err    error
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return f.err
}

func TestCodecs(t *testing.T) {
	Convey("Given the available codecs", t, func() {
		for _, name := range []string{"gzip", "zstd"} {
			codec, err := ByName(name)
			So(err, ShouldBeNil)

			Convey("When compressing and decompressing with "+name, func() {
				input := []byte(strings.Repeat("This is a test content for compression\n", 64))

				src := &failingCloser{Reader: bytes.NewReader(input)}
				compressed, err := io.ReadAll(Compress(codec, src))

				Convey("It should round-trip the content", func() {
					So(err, ShouldBeNil)
					So(src.closed, ShouldBeTrue)
					So(len(compressed), ShouldBeLessThan, len(input))

					r, err := codec.NewReader(bytes.NewReader(compressed))
					So(err, ShouldBeNil)
					defer r.Close()

					out, err := io.ReadAll(r)
					So(err, ShouldBeNil)
					So(out, ShouldResemble, input)
				})
			})
		}

		Convey("When the source fails on close", func() {
			codec := NewGzip()
			src := &failingCloser{Reader: strings.NewReader("partial dump"), err: errors.New("pg_dump exited with code 1")}

			_, err := io.ReadAll(Compress(codec, src))

			Convey("It should surface the source error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "pg_dump exited with code 1")
			})
		})

		Convey("When decompressing invalid data", func() {
			_, err := NewGzip().NewReader(strings.NewReader("not a gzip file"))

			Convey("It should return an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
			})
		})

		Convey("ByName should reject unknown codecs", func() {
			_, err := ByName("lz4")
			So(err, ShouldNotBeNil)
		})

		Convey("ForArtifact should pick by extension", func() {
			c, ok := ForArtifact("app_20250101_000000.sql.gz")
			So(ok, ShouldBeTrue)
			So(c.Name(), ShouldEqual, "gzip")

			c, ok = ForArtifact("files_20250101_000000.tar.zst")
			So(ok, ShouldBeTrue)
			So(c.Name(), ShouldEqual, "zstd")

			_, ok = ForArtifact("files_20250101_000000.tar")
			So(ok, ShouldBeFalse)
		})
	})
}
