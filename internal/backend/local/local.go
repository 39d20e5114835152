// Package local provides a filesystem backend rooted at a local directory.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/strata-fs/strata/internal/vfs"
)

// Backend implements vfs.Filesystem on a local directory tree.
type Backend struct {
	root string
}

// New creates a local backend rooted at root, creating the directory
// if it does not exist.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("local backend: root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat root %s: %w", root, err)
		}
		if err := os.MkdirAll(root, 0o775); err != nil {
			return nil, fmt.Errorf("create root %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root %s: %w", root, vfs.ErrInvalid)
	}
	return &Backend{root: root}, nil
}

func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(vfs.NormalizePath(path)))
}

// mapWriteErr distinguishes a missing parent directory from a missing
// leaf, so wrappers can repair the former.
func (b *Backend) mapWriteErr(path string, err error) error {
	if !os.IsNotExist(err) {
		return err
	}
	parent := vfs.ParentDir(path)
	if parent != "" {
		if _, statErr := os.Stat(b.fullPath(parent)); os.IsNotExist(statErr) {
			return vfs.ParentDirMissing(path)
		}
	}
	return vfs.NotFound(path)
}

// Open opens a file for reading.
func (b *Backend) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(b.fullPath(path))
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

// OpenWrite opens a file for writing. Truncating writes go to a temp
// file renamed into place on Close, so readers never observe a partial
// file. Appends write in place.
func (b *Backend) OpenWrite(_ context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	full := b.fullPath(path)

	if mode == vfs.WriteAppend {
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o664)
		if err != nil {
			return nil, b.mapWriteErr(path, err)
		}
		return f, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".strata-*.tmp")
	if err != nil {
		return nil, b.mapWriteErr(path, err)
	}
	return &atomicWriter{f: tmp, tmpName: tmp.Name(), final: full}, nil
}

// Exists reports whether path exists.
func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

// IsDir reports whether path is a directory.
func (b *Backend) IsDir(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(b.fullPath(path))
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
	info, err := os.Stat(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Info returns size and modified time for path.
func (b *Backend) Info(_ context.Context, path string) (vfs.FileInfo, error) {
	info, err := os.Stat(b.fullPath(path))
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
	full := b.fullPath(path)
	if !allowRecreate {
		if _, err := os.Stat(full); err == nil {
			return fmt.Errorf("makedir %s: already exists", path)
		}
	}
	if recursive {
		if err := os.MkdirAll(full, 0o775); err != nil {
			return fmt.Errorf("makedir %s: %w", path, err)
		}
		return nil
	}
	if err := os.Mkdir(full, 0o775); err != nil {
		if os.IsExist(err) && allowRecreate {
			return nil
		}
		return b.mapWriteErr(path, err)
	}
	return nil
}

// Remove deletes the file at path.
func (b *Backend) Remove(_ context.Context, path string) error {
	if err := os.Remove(b.fullPath(path)); err != nil {
		if os.IsNotExist(err) {
			return vfs.NotFound(path)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// List returns the entries of the directory at path.
func (b *Backend) List(_ context.Context, path string) ([]vfs.Entry, error) {
	dirEntries, err := os.ReadDir(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.NotFound(path)
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	entries := make([]vfs.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := vfs.Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
			e.ModTime = info.ModTime()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SysPath returns the real OS path for path.
func (b *Backend) SysPath(path string) (string, bool) {
	return b.fullPath(path), true
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "local:" + b.root }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }

// atomicWriter writes to a temp file and renames it into place on Close.
type atomicWriter struct {
	f       *os.File
	tmpName string
	final   string
	closed  bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *atomicWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpName)
		return err
	}
	if err := os.Rename(w.tmpName, w.final); err != nil {
		os.Remove(w.tmpName)
		return err
	}
	return nil
}
