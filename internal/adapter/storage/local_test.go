package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(path, content string) {
	So(os.MkdirAll(filepath.Dir(path), 0755), ShouldBeNil)
	So(os.WriteFile(path, []byte(content), 0644), ShouldBeNil)
}

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		tempDir := t.TempDir()
		ctx := context.Background()

		Convey("NewLocal", func() {
			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(tempDir, "new", "nested", "dir")
				storage, err := NewLocal(newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage.Root(), ShouldEqual, newPath)

					info, err := os.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		storage, err := NewLocal(tempDir)
		So(err, ShouldBeNil)

		Convey("EnsureDir method", func() {
			dir, err := storage.EnsureDir("mariadb", "shop")

			So(err, ShouldBeNil)
			So(dir, ShouldEqual, filepath.Join(tempDir, "mariadb", "shop"))
			info, err := os.Stat(dir)
			So(err, ShouldBeNil)
			So(info.IsDir(), ShouldBeTrue)
		})

		Convey("Entries method", func() {
			Convey("When the directory has files and subdirectories", func() {
				writeFile(filepath.Join(tempDir, "sqlite", "notes", "b.db.gz"), "bb")
				writeFile(filepath.Join(tempDir, "sqlite", "notes", "a.db.gz"), "a")
				So(os.Mkdir(filepath.Join(tempDir, "sqlite", "notes", "subdir"), 0755), ShouldBeNil)

				entries, err := storage.Entries("sqlite", "notes")

				Convey("It should list only regular files with sizes", func() {
					So(err, ShouldBeNil)
					So(len(entries), ShouldEqual, 2)
					So(entries[0].Name, ShouldEqual, "a.db.gz")
					So(entries[0].Size, ShouldEqual, uint64(1))
					So(entries[1].Path, ShouldEqual, filepath.Join(tempDir, "sqlite", "notes", "b.db.gz"))
					So(entries[1].Size, ShouldEqual, uint64(2))
				})
			})

			Convey("When the directory does not exist", func() {
				entries, err := storage.Entries("postgres", "missing")

				Convey("It should report it as missing", func() {
					So(errors.Is(err, fs.ErrNotExist), ShouldBeTrue)
					So(entries, ShouldBeEmpty)
				})
			})
		})

		Convey("Artifacts method", func() {
			writeFile(filepath.Join(tempDir, "mariadb", "shop", "shop-1.sql.gz"), "x")
			writeFile(filepath.Join(tempDir, "valkey", "cache", "cache-1.rdb.gz"), "y")
			writeFile(filepath.Join(tempDir, "valkey", "cache", "cache-2.rdb.gz.tmp"), "z")

			entries, err := storage.Artifacts()

			Convey("It should find compressed artifacts in every subtree", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
			})
		})

		Convey("Upload method", func() {
			Convey("When uploading to a nested key", func() {
				sourceFile := filepath.Join(t.TempDir(), "source.txt")
				writeFile(sourceFile, "test content")

				err := storage.Upload(ctx, sourceFile, "postgres/analytics/a.dump.gz")

				Convey("It should create the directories and copy the file", func() {
					So(err, ShouldBeNil)
					content, err := os.ReadFile(filepath.Join(tempDir, "postgres", "analytics", "a.dump.gz"))
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})
			})

			Convey("When source file does not exist", func() {
				err := storage.Upload(ctx, "nonexistent.txt", "uploaded.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to open source")
				})
			})

			Convey("A key cannot escape the root", func() {
				sourceFile := filepath.Join(t.TempDir(), "source.txt")
				writeFile(sourceFile, "x")

				So(storage.Upload(ctx, sourceFile, "../../escaped.txt"), ShouldBeNil)
				_, err := os.Stat(filepath.Join(tempDir, "escaped.txt"))
				So(err, ShouldBeNil)
			})
		})

		Convey("List method", func() {
			writeFile(filepath.Join(tempDir, "mariadb", "shop", "shop-1.sql.gz"), "x")
			writeFile(filepath.Join(tempDir, "mariadb", "shop", "shop-2.sql.gz"), "x")
			writeFile(filepath.Join(tempDir, "mariadb", "crm", "crm-1.sql.gz"), "x")

			Convey("It should return slash separated keys under the prefix", func() {
				files, err := storage.List(ctx, "mariadb/shop/")
				So(err, ShouldBeNil)
				So(files, ShouldResemble, []string{"mariadb/shop/shop-1.sql.gz", "mariadb/shop/shop-2.sql.gz"})
			})

			Convey("An empty prefix should list everything", func() {
				files, err := storage.List(ctx, "")
				So(err, ShouldBeNil)
				So(len(files), ShouldEqual, 3)
			})
		})

		Convey("Delete method", func() {
			Convey("When deleting existing file", func() {
				writeFile(filepath.Join(tempDir, "sqlite", "notes", "delete_me.db.gz"), "test")

				err := storage.Delete(ctx, "sqlite/notes/delete_me.db.gz")

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)
					_, err := os.Stat(filepath.Join(tempDir, "sqlite", "notes", "delete_me.db.gz"))
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "nonexistent.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
				})
			})
		})
	})
}
