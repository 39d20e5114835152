// Package hidefs wraps a filesystem and hides entries matching glob
// wildcards. Hidden paths are invisible to existence checks, listings
// and walks, and read as not-found, so wrappers built on listings (the
// file walker feeding a sync) never see them. Typical use is keeping
// scratch artifacts out of a sync run:
//
//	fs := hidefs.New(src, "*.tmp", ".svn")
package hidefs

import (
	"context"
	"io"
	gopath "path"
	"strings"

	"github.com/strata-fs/strata/internal/vfs"
)

// HideFS implements vfs.Filesystem over a wrapped filesystem, hiding
// paths that match its wildcards.
type HideFS struct {
	wrapped   vfs.Filesystem
	wildcards []string
	fullPath  bool
}

// New hides any path with a segment matching one of the wildcards
// (path.Match syntax). "*.tmp" hides every .tmp file anywhere; ".svn"
// hides every .svn directory and everything under it.
func New(wrapped vfs.Filesystem, wildcards ...string) *HideFS {
	return &HideFS{wrapped: wrapped, wildcards: wildcards}
}

// NewPaths hides any path whose full normalized form matches one of
// the wildcards, e.g. "tmp" or "media/tmp" hide only those subtrees.
func NewPaths(wrapped vfs.Filesystem, wildcards ...string) *HideFS {
	return &HideFS{wrapped: wrapped, wildcards: wildcards, fullPath: true}
}

func (h *HideFS) matches(s string) bool {
	for _, w := range h.wildcards {
		// A malformed wildcard matches nothing.
		if ok, err := gopath.Match(w, s); err == nil && ok {
			return true
		}
	}
	return false
}

// hidden reports whether path or any of its ancestors is hidden.
func (h *HideFS) hidden(path string) bool {
	path = vfs.NormalizePath(path)
	if path == "" {
		return false
	}
	if h.fullPath {
		for {
			if h.matches(path) {
				return true
			}
			idx := strings.LastIndexByte(path, '/')
			if idx < 0 {
				return false
			}
			path = path[:idx]
		}
	}
	for _, part := range strings.Split(path, "/") {
		if h.matches(part) {
			return true
		}
	}
	return false
}

// Open opens a file for reading; hidden paths read as missing.
func (h *HideFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if h.hidden(path) {
		return nil, vfs.NotFound(path)
	}
	return h.wrapped.Open(ctx, path)
}

// OpenWrite opens a file for writing; hidden paths cannot be written.
func (h *HideFS) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	if h.hidden(path) {
		return nil, vfs.NotFound(path)
	}
	return h.wrapped.OpenWrite(ctx, path, mode)
}

// Exists reports whether a visible file or directory exists at path.
func (h *HideFS) Exists(ctx context.Context, path string) (bool, error) {
	if h.hidden(path) {
		return false, nil
	}
	return h.wrapped.Exists(ctx, path)
}

// IsDir reports whether a visible directory exists at path.
func (h *HideFS) IsDir(ctx context.Context, path string) (bool, error) {
	if h.hidden(path) {
		return false, nil
	}
	return h.wrapped.IsDir(ctx, path)
}

// IsFile reports whether a visible regular file exists at path.
func (h *HideFS) IsFile(ctx context.Context, path string) (bool, error) {
	if h.hidden(path) {
		return false, nil
	}
	return h.wrapped.IsFile(ctx, path)
}

// Info returns metadata for the file at path; hidden paths are missing.
func (h *HideFS) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	if h.hidden(path) {
		return vfs.FileInfo{}, vfs.NotFound(path)
	}
	return h.wrapped.Info(ctx, path)
}

// MakeDir creates a directory at a visible path.
func (h *HideFS) MakeDir(ctx context.Context, path string, recursive, allowRecreate bool) error {
	if h.hidden(path) {
		return vfs.NotFound(path)
	}
	return h.wrapped.MakeDir(ctx, path, recursive, allowRecreate)
}

// Remove deletes the file at a visible path.
func (h *HideFS) Remove(ctx context.Context, path string) error {
	if h.hidden(path) {
		return vfs.NotFound(path)
	}
	return h.wrapped.Remove(ctx, path)
}

// List returns the visible entries of the directory at path. Walks
// built on List inherit the filtering, so hidden directories are never
// descended into.
func (h *HideFS) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	if h.hidden(path) {
		return nil, vfs.NotFound(path)
	}
	entries, err := h.wrapped.List(ctx, path)
	if err != nil {
		return nil, err
	}
	visible := entries[:0]
	for _, e := range entries {
		if !h.hidden(vfs.JoinPath(path, e.Name)) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// Name returns the wrapper identifier.
func (h *HideFS) Name() string {
	return "hide(" + h.wrapped.Name() + ")"
}

// Close is a no-op: the wrapped filesystem is shared and stays open.
func (h *HideFS) Close() error { return nil }
