package backend

import (
	"context"
	"io"
	"sync"

	"github.com/strata-fs/strata/internal/vfs"
)

// lazyFS defers backend construction until the first real operation, so
// resolving a storage string never costs a network round trip. The
// factory runs at most once; its result, success or failure, is held
// for the life of the handle. The mutex covers both materialization and
// Close, so a Close racing the first use observes a settled state.
type lazyFS struct {
	name  string
	build func(ctx context.Context) (vfs.Filesystem, error)

	mu    sync.Mutex
	built bool
	fs    vfs.Filesystem
	err   error
}

func newLazy(name string, build func(ctx context.Context) (vfs.Filesystem, error)) *lazyFS {
	return &lazyFS{name: name, build: build}
}

func (l *lazyFS) materialize(ctx context.Context) (vfs.Filesystem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.built {
		l.fs, l.err = l.build(ctx)
		l.built = true
	}
	return l.fs, l.err
}

func (l *lazyFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, path)
}

func (l *lazyFS) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return nil, err
	}
	return fs.OpenWrite(ctx, path, mode)
}

func (l *lazyFS) Exists(ctx context.Context, path string) (bool, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return false, err
	}
	return fs.Exists(ctx, path)
}

func (l *lazyFS) IsDir(ctx context.Context, path string) (bool, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return false, err
	}
	return fs.IsDir(ctx, path)
}

func (l *lazyFS) IsFile(ctx context.Context, path string) (bool, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return false, err
	}
	return fs.IsFile(ctx, path)
}

func (l *lazyFS) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return fs.Info(ctx, path)
}

func (l *lazyFS) MakeDir(ctx context.Context, path string, recursive, allowRecreate bool) error {
	fs, err := l.materialize(ctx)
	if err != nil {
		return err
	}
	return fs.MakeDir(ctx, path, recursive, allowRecreate)
}

func (l *lazyFS) Remove(ctx context.Context, path string) error {
	fs, err := l.materialize(ctx)
	if err != nil {
		return err
	}
	return fs.Remove(ctx, path)
}

func (l *lazyFS) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	fs, err := l.materialize(ctx)
	if err != nil {
		return nil, err
	}
	return fs.List(ctx, path)
}

// Name reports the configured identifier without materializing.
func (l *lazyFS) Name() string { return l.name }

// Close closes the underlying backend if it was ever materialized.
// Closing never triggers materialization.
func (l *lazyFS) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fs != nil {
		return l.fs.Close()
	}
	return nil
}
