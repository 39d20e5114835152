// Package memfs provides an in-memory filesystem backend on top of
// afero. Instances are self-contained and disposable, which makes them
// the write layer and cache backend of choice for test isolation.
package memfs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/strata-fs/strata/internal/vfs"
)

// Backend implements vfs.Filesystem over an afero MemMapFs.
type Backend struct {
	fs afero.Fs
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{fs: afero.NewMemMapFs()}
}

func memPath(path string) string {
	return "/" + vfs.NormalizePath(path)
}

// Open opens a file for reading.
func (b *Backend) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := b.fs.Open(memPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.NotFound(path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, vfs.ErrInvalid)
	}
	return f, nil
}

// OpenWrite opens a file for writing.
func (b *Backend) OpenWrite(_ context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if mode == vfs.WriteAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := b.fs.OpenFile(memPath(path), flags, 0o664)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.ParentDirMissing(path)
		}
		return nil, fmt.Errorf("open %s for write: %w", path, err)
	}
	return f, nil
}

// Exists reports whether path exists.
func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	ok, err := afero.Exists(b.fs, memPath(path))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// IsDir reports whether path is a directory.
func (b *Backend) IsDir(_ context.Context, path string) (bool, error) {
	info, err := b.fs.Stat(memPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// IsFile reports whether path is a regular file.
func (b *Backend) IsFile(_ context.Context, path string) (bool, error) {
	info, err := b.fs.Stat(memPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// Info returns size and modified time for path.
func (b *Backend) Info(_ context.Context, path string) (vfs.FileInfo, error) {
	info, err := b.fs.Stat(memPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return vfs.FileInfo{}, vfs.NotFound(path)
		}
		return vfs.FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return vfs.FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// MakeDir creates a directory.
func (b *Backend) MakeDir(_ context.Context, path string, recursive, allowRecreate bool) error {
	full := memPath(path)
	if !allowRecreate {
		if ok, _ := afero.Exists(b.fs, full); ok {
			return fmt.Errorf("makedir %s: already exists", path)
		}
	}
	var err error
	if recursive {
		err = b.fs.MkdirAll(full, 0o775)
	} else {
		err = b.fs.Mkdir(full, 0o775)
		if err != nil && os.IsExist(err) && allowRecreate {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("makedir %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at path.
func (b *Backend) Remove(_ context.Context, path string) error {
	if err := b.fs.Remove(memPath(path)); err != nil {
		if os.IsNotExist(err) {
			return vfs.NotFound(path)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// List returns the entries of the directory at path.
func (b *Backend) List(_ context.Context, path string) ([]vfs.Entry, error) {
	infos, err := afero.ReadDir(b.fs, memPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.NotFound(path)
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	entries := make([]vfs.Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, vfs.Entry{
			Name:    info.Name(),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "mem" }

// Close is a no-op for in-memory backends.
func (b *Backend) Close() error { return nil }
