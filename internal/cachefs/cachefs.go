// Package cachefs wraps a source filesystem with a read-through cache
// held on a second filesystem. Reads materialize whole files into the
// cache backend on miss; any write to a path purges its cache entry,
// so a stale entry can never be served for a path written through the
// wrapper.
package cachefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/backend/memfs"
	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/metrics"
	"github.com/strata-fs/strata/internal/vfs"
)

// CacheFS implements vfs.Filesystem around a source and a cache
// backend. The mutex serializes cache-backend swaps against in-flight
// structural operations.
type CacheFS struct {
	source vfs.Filesystem

	mu         sync.Mutex
	cache      vfs.Filesystem
	testMode   bool
	savedCache vfs.Filesystem
}

// New wraps source with a cache held on cacheFS.
func New(source, cacheFS vfs.Filesystem) *CacheFS {
	return &CacheFS{source: source, cache: cacheFS}
}

// EnableTestMode swaps the cache backend for a disposable in-memory
// one. Idempotent.
func (c *CacheFS) EnableTestMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.testMode {
		return
	}
	c.savedCache = c.cache
	c.cache = memfs.New()
	c.testMode = true
}

// DisableTestMode restores the cache backend saved by EnableTestMode.
// Idempotent.
func (c *CacheFS) DisableTestMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.testMode {
		return
	}
	c.cache = c.savedCache
	c.savedCache = nil
	c.testMode = false
}

func (c *CacheFS) cacheFS() vfs.Filesystem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// purge drops the cache entry for path. Purging an entry that does not
// exist is not an error.
func (c *CacheFS) purge(ctx context.Context, path string) error {
	err := c.cacheFS().Remove(ctx, path)
	if err != nil && !vfs.IsNotFound(err) {
		return fmt.Errorf("purge %s: %w", path, err)
	}
	if err == nil {
		metrics.RecordCachePurge()
	}
	return nil
}

// Open serves path from the cache, materializing the whole file from
// source first on a miss.
func (c *CacheFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	path = vfs.NormalizePath(path)
	cache := c.cacheFS()

	r, err := cache.Open(ctx, path)
	if err == nil {
		metrics.RecordCacheHit()
		return r, nil
	}
	if !vfs.IsNotFound(err) {
		return nil, err
	}

	metrics.RecordCacheMiss()
	logging.Debug("cache miss", zap.String("path", path))

	// Copy the whole file onto the cache; CopyFile creates missing
	// cache directories on the way.
	if err := vfs.CopyFile(ctx, c.source, path, cache, path); err != nil {
		return nil, err
	}
	return cache.Open(ctx, path)
}

// OpenWrite bypasses the cache: the write lands on source, and the
// returned handle purges the cache entry when closed, forcing the next
// read back to source.
func (c *CacheFS) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	path = vfs.NormalizePath(path)
	w, err := c.source.OpenWrite(ctx, path, mode)
	if err != nil {
		// Invalidation is unconditional on any write attempt, even one
		// that never opened.
		return nil, errors.Join(err, c.purge(ctx, path))
	}
	return &purgeWriter{
		WriteCloser: w,
		purge:       func() error { return c.purge(ctx, path) },
	}, nil
}

// Exists delegates to source.
func (c *CacheFS) Exists(ctx context.Context, path string) (bool, error) {
	return c.source.Exists(ctx, path)
}

// IsDir delegates to source.
func (c *CacheFS) IsDir(ctx context.Context, path string) (bool, error) {
	return c.source.IsDir(ctx, path)
}

// IsFile delegates to source.
func (c *CacheFS) IsFile(ctx context.Context, path string) (bool, error) {
	return c.source.IsFile(ctx, path)
}

// Info delegates to source.
func (c *CacheFS) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	return c.source.Info(ctx, path)
}

// MakeDir delegates to source.
func (c *CacheFS) MakeDir(ctx context.Context, path string, recursive, allowRecreate bool) error {
	return c.source.MakeDir(ctx, path, recursive, allowRecreate)
}

// Remove deletes path on source and purges its cache entry, whether or
// not the source delete succeeded: a stale entry is strictly worse
// than a missing one.
func (c *CacheFS) Remove(ctx context.Context, path string) error {
	path = vfs.NormalizePath(path)
	err := c.source.Remove(ctx, path)
	if purgeErr := c.purge(ctx, path); purgeErr != nil && err == nil {
		err = purgeErr
	}
	return err
}

// List delegates to source.
func (c *CacheFS) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	return c.source.List(ctx, path)
}

// Name returns the wrapper identifier.
func (c *CacheFS) Name() string {
	return "cache(" + c.source.Name() + ")"
}

// Close is a no-op: source and cache backends are shared through the
// registry and stay open.
func (c *CacheFS) Close() error { return nil }

// purgeWriter invalidates the cache entry when the write handle is
// closed, even if the close itself fails.
type purgeWriter struct {
	io.WriteCloser
	purge  func() error
	closed bool
}

func (w *purgeWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	closeErr := w.WriteCloser.Close()
	purgeErr := w.purge()
	return errors.Join(closeErr, purgeErr)
}
