package vfs

import (
	gopath "path"
	"strings"
)

// NormalizePath cleans a '/'-separated path and strips the leading
// slash, yielding the canonical relative form used throughout.
func NormalizePath(p string) string {
	p = gopath.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// ParentDir returns the parent directory of p, "" for top-level paths.
func ParentDir(p string) string {
	p = NormalizePath(p)
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// JoinPath joins path segments with '/', skipping empty segments.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
