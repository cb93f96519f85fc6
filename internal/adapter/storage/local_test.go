package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/domain"
)

type failingReader struct{ after string }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after == "" {
		return 0, errors.New("source broke")
	}
	n := copy(p, f.after)
	f.after = f.after[n:]
	return n, nil
}

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		fsys := afero.NewMemMapFs()
		basePath := "/var/backups"
		ctx := context.Background()

		Convey("NewLocal", func() {
			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(basePath, "new", "nested", "dir")
				storage, err := NewLocal(fsys, newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)

					info, err := fsys.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		storage, err := NewLocal(fsys, basePath)
		So(err, ShouldBeNil)

		Convey("Write method", func() {
			Convey("When writing a complete stream", func() {
				path, size, err := storage.Write(ctx, "app", "app_20250102_030405.sql.gz", strings.NewReader("test content"))

				Convey("It should place the file under the element directory", func() {
					So(err, ShouldBeNil)
					So(size, ShouldEqual, 12)
					So(path, ShouldEqual, filepath.Join(basePath, "app", "app_20250102_030405.sql.gz"))

					content, err := afero.ReadFile(fsys, path)
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})

				Convey("It should leave no partial file behind", func() {
					exists, _ := afero.Exists(fsys, path+domain.PartialSuffix)
					So(exists, ShouldBeFalse)
				})
			})

			Convey("When the stream fails midway", func() {
				_, _, err := storage.Write(ctx, "app", "app_20250102_030405.sql.gz", &failingReader{after: "half"})

				Convey("It should return error and remove the partial file", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "source broke")

					files, err := afero.ReadDir(fsys, filepath.Join(basePath, "app"))
					So(err, ShouldBeNil)
					So(len(files), ShouldEqual, 0)
				})
			})

			Convey("When an interrupted run left partial files behind", func() {
				dir := filepath.Join(basePath, "app")
				stale := filepath.Join(dir, "app_20241201_030405.sql.gz"+domain.PartialSuffix)
				recent := filepath.Join(dir, "app_20250102_030000.sql.gz"+domain.PartialSuffix)
				afero.WriteFile(fsys, stale, []byte("half"), 0o640)
				afero.WriteFile(fsys, recent, []byte("half"), 0o640)
				old := time.Now().Add(-2 * StalePartialAge)
				So(fsys.Chtimes(stale, old, old), ShouldBeNil)

				_, _, err := storage.Write(ctx, "app", "app_20250102_030405.sql.gz", strings.NewReader("x"))
				So(err, ShouldBeNil)

				Convey("It should remove only the stale one", func() {
					exists, _ := afero.Exists(fsys, stale)
					So(exists, ShouldBeFalse)
					exists, _ = afero.Exists(fsys, recent)
					So(exists, ShouldBeTrue)
				})
			})

			Convey("When the context is already cancelled", func() {
				cancelled, cancel := context.WithCancel(ctx)
				cancel()
				_, _, err := storage.Write(cancelled, "app", "x.sql", strings.NewReader("x"))

				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("Open method", func() {
			_, _, err := storage.Write(ctx, "app", "a.sql", strings.NewReader("payload"))
			So(err, ShouldBeNil)

			rc, err := storage.Open(ctx, "app", "a.sql")
			So(err, ShouldBeNil)
			defer rc.Close()

			content, err := io.ReadAll(rc)
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, "payload")

			_, err = storage.Open(ctx, "app", "missing.sql")
			So(err, ShouldNotBeNil)
		})

		Convey("List method", func() {
			Convey("When directory has files", func() {
				afero.WriteFile(fsys, filepath.Join(basePath, "app", "file1.sql"), []byte("test"), 0o644)
				afero.WriteFile(fsys, filepath.Join(basePath, "app", "file2.sql"), []byte("test"), 0o644)
				fsys.Mkdir(filepath.Join(basePath, "app", "subdir"), 0o755)

				files, err := storage.List(ctx, "app")

				Convey("It should list only files", func() {
					So(err, ShouldBeNil)
					So(len(files), ShouldEqual, 2)

					var names []string
					for _, f := range files {
						names = append(names, f.Name)
					}
					So(names, ShouldContain, "file1.sql")
					So(names, ShouldContain, "file2.sql")
					So(names, ShouldNotContain, "subdir")
				})
			})

			Convey("When the element has never been backed up", func() {
				files, err := storage.List(ctx, "never")

				Convey("It should return empty list", func() {
					So(err, ShouldBeNil)
					So(len(files), ShouldEqual, 0)
				})
			})
		})

		Convey("Delete method", func() {
			Convey("When deleting existing file", func() {
				afero.WriteFile(fsys, filepath.Join(basePath, "app", "delete_me.sql"), []byte("test"), 0o644)

				err := storage.Delete(ctx, "app", "delete_me.sql")

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)

					exists, _ := afero.Exists(fsys, filepath.Join(basePath, "app", "delete_me.sql"))
					So(exists, ShouldBeFalse)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "app", "nonexistent.sql")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
				})
			})
		})

		Convey("GetPath method", func() {
			So(storage.GetPath("app", "test.sql"), ShouldEqual, filepath.Join(basePath, "app", "test.sql"))
		})
	})
}
