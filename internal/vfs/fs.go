// Package vfs defines the filesystem contract shared by all storage
// backends and wrappers. Backends handle raw file I/O (local disk, S3,
// HTTP mirrors); wrappers (layering, caching) compose them behind the
// same interface.
package vfs

import (
	"context"
	"io"
	"time"
)

// WriteMode selects how OpenWrite positions the stream.
type WriteMode int

const (
	// WriteTruncate replaces any existing content.
	WriteTruncate WriteMode = iota
	// WriteAppend appends to existing content, creating the file if absent.
	WriteAppend
)

// FileInfo holds the metadata exposed for a single file.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// Entry is one directory listing entry.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Filesystem is the interface for storage backends and wrappers.
// Paths are '/'-separated and relative to the filesystem root.
type Filesystem interface {
	// Open opens a file for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for writing. Content becomes visible to
	// readers no later than Close.
	OpenWrite(ctx context.Context, path string, mode WriteMode) (io.WriteCloser, error)

	// Exists reports whether a file or directory exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// IsDir reports whether path names a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// IsFile reports whether path names a regular file.
	IsFile(ctx context.Context, path string) (bool, error)

	// Info returns metadata for the file at path.
	Info(ctx context.Context, path string) (FileInfo, error)

	// MakeDir creates a directory. With recursive set, missing parents
	// are created as well. With allowRecreate set, an already existing
	// directory is not an error.
	MakeDir(ctx context.Context, path string, recursive, allowRecreate bool) error

	// Remove deletes the file at path.
	Remove(ctx context.Context, path string) error

	// List returns the entries of the directory at path.
	List(ctx context.Context, path string) ([]Entry, error)

	// Name returns a short identifier for logging.
	Name() string

	// Close releases any resources held by the filesystem.
	Close() error
}

// SysPather is implemented by filesystems whose files live at real OS
// paths (the local backend). SysPath returns the OS path for path and
// whether one exists.
type SysPather interface {
	SysPath(path string) (string, bool)
}
