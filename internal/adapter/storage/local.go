package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage is a directory tree on the host. It holds the primary backup
// tree and doubles as a replica for mounted volumes.
type LocalStorage struct {
	basePath string
}

// Entry is a regular file found in the tree.
type Entry struct {
	Name string
	Path string
	Size uint64
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Root() string {
	return l.basePath
}

// Dir returns the directory for the given path elements below the root.
func (l *LocalStorage) Dir(elem ...string) string {
	return filepath.Join(append([]string{l.basePath}, elem...)...)
}

// EnsureDir creates the directory for elem if needed and returns it.
func (l *LocalStorage) EnsureDir(elem ...string) (string, error) {
	dir := l.Dir(elem...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Entries lists the regular files directly inside the directory for elem,
// sorted by name. A missing directory yields an error matching fs.ErrNotExist.
func (l *LocalStorage) Entries(elem ...string) ([]Entry, error) {
	dir := l.Dir(elem...)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var entries []Entry
	for _, entry := range dirEntries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to get file info for %s: %w", entry.Name(), err)
		}
		entries = append(entries, Entry{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: uint64(info.Size()),
		})
	}
	return entries, nil
}

// Artifacts walks the whole tree and returns every compressed artifact.
func (l *LocalStorage) Artifacts() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".gz") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: d.Name(), Path: p, Size: uint64(info.Size())})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.basePath, err)
	}
	return entries, nil
}

func (l *LocalStorage) Remove(p string) error {
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	destPath := l.keyPath(remoteName)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := dest.ReadFrom(source); err != nil {
		_ = dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	return dest.Close()
}

// List returns the slash separated keys of all files under prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.basePath, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) Delete(ctx context.Context, remoteName string) error {
	return l.Remove(l.keyPath(remoteName))
}

func (l *LocalStorage) keyPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(path.Clean("/"+key)))
}
