// Package backend resolves storage configuration strings into live
// vfs.Filesystem instances and memoizes them, so the same string never
// produces two backend handles within a process.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/backend/httpfs"
	"github.com/strata-fs/strata/internal/backend/local"
	"github.com/strata-fs/strata/internal/backend/memfs"
	"github.com/strata-fs/strata/internal/backend/s3"
	"github.com/strata-fs/strata/internal/config"
	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/vfs"
)

// Registry memoizes backend instances by configuration string.
// Entries live for the life of the registry; tests inject a fresh
// registry instead of sharing process-global state.
type Registry struct {
	cfg *config.Config

	mu       sync.Mutex
	backends map[string]vfs.Filesystem
}

// NewRegistry creates an empty registry using cfg for backend settings.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = config.Load()
	}
	return &Registry{
		cfg:      cfg,
		backends: make(map[string]vfs.Filesystem),
	}
}

// Resolve returns the backend for a configuration string:
//
//	mem                  fresh in-memory filesystem (never memoized)
//	/path or ~/path      local directory, created if missing
//	s3:bucket[/prefix]   S3 bucket with optional key prefix
//	http(s)://base/url   read-only HTTP mirror
func (r *Registry) Resolve(ctx context.Context, s string) (vfs.Filesystem, error) {
	// In-memory filesystems are unique and disposable; memoizing them
	// would share state between callers that expect isolation.
	if s == "mem" {
		return memfs.New(), nil
	}

	if strings.HasPrefix(s, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", s, err)
		}
		s = filepath.Join(home, s[2:])
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.backends[s]; ok {
		return fs, nil
	}

	fs, err := r.build(ctx, s)
	if err != nil {
		return nil, err
	}
	logging.Debug("resolved storage backend",
		zap.String("config", s), zap.String("backend", fs.Name()))
	r.backends[s] = fs
	return fs, nil
}

func (r *Registry) build(ctx context.Context, s string) (vfs.Filesystem, error) {
	switch {
	case strings.HasPrefix(s, "/"):
		return local.New(s)

	case strings.HasPrefix(s, "s3:"):
		bucket := s[len("s3:"):]
		prefix := ""
		if idx := strings.IndexByte(bucket, '/'); idx >= 0 {
			bucket, prefix = bucket[:idx], bucket[idx+1:]
		}
		// Building the S3 client loads credentials, which can involve a
		// network round trip. The lazy handle postpones that until the
		// first real operation.
		opts := s3.Options{
			Bucket:    bucket,
			Prefix:    prefix,
			Endpoint:  r.cfg.S3Endpoint,
			AccessKey: r.cfg.S3AccessKey,
			SecretKey: r.cfg.S3SecretKey,
			Region:    r.cfg.S3Region,
		}
		return newLazy(s, func(ctx context.Context) (vfs.Filesystem, error) {
			return s3.New(ctx, opts)
		}), nil

	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		ttl := time.Duration(r.cfg.HTTPInfoCacheSeconds) * time.Second
		return httpfs.New(s, ttl), nil

	default:
		return nil, fmt.Errorf("unsupported storage string %q", s)
	}
}

// Close closes every memoized backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s, fs := range r.backends {
		if err := fs.Close(); err != nil {
			logging.Warn("closing backend",
				zap.String("config", s), zap.Error(err))
		}
	}
	r.backends = make(map[string]vfs.Filesystem)
	return nil
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(nil)
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry. Tests use it to
// substitute a fresh instance and restore the previous one afterwards.
func SetDefault(r *Registry) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultRegistry
	defaultRegistry = r
	return prev
}
