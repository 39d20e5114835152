package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const copyChunkSize = 1 << 20

// WriteFile replaces the content of path with everything read from r.
// Going through OpenWrite means wrappers keep their semantics: the
// layered filesystem routes and repairs, the caching filesystem purges
// on close.
func WriteFile(ctx context.Context, fs Filesystem, path string, r io.Reader) error {
	w, err := fs.OpenWrite(ctx, path, WriteTruncate)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(w, r)
	closeErr := w.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", path, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", path, closeErr)
	}
	return nil
}

// ReadFile returns the full content of path.
func ReadFile(ctx context.Context, fs Filesystem, path string) ([]byte, error) {
	r, err := fs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// CopyFile copies one file between filesystems. A copy that fails
// because the destination's parent directory is missing creates the
// directory and retries once.
func CopyFile(ctx context.Context, src Filesystem, srcPath string, dst Filesystem, dstPath string) error {
	err := copyFileOnce(ctx, src, srcPath, dst, dstPath)
	if err != nil && errors.Is(err, ErrParentDirMissing) {
		if mkErr := dst.MakeDir(ctx, ParentDir(dstPath), true, true); mkErr != nil {
			return mkErr
		}
		err = copyFileOnce(ctx, src, srcPath, dst, dstPath)
	}
	return err
}

// MoveFile moves a file within one filesystem, creating the target's
// parent directory when missing. Backends expose no rename, so the
// move is a copy followed by removing the source; the source survives
// a failed copy.
func MoveFile(ctx context.Context, fs Filesystem, fromPath, toPath string) error {
	if err := CopyFile(ctx, fs, fromPath, fs, toPath); err != nil {
		return err
	}
	return fs.Remove(ctx, fromPath)
}

func copyFileOnce(ctx context.Context, src Filesystem, srcPath string, dst Filesystem, dstPath string) error {
	r, err := src.Open(ctx, srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := dst.OpenWrite(ctx, dstPath, WriteTruncate)
	if err != nil {
		return err
	}
	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		w.Close()
		return fmt.Errorf("copy %s: %w", dstPath, err)
	}
	return w.Close()
}
