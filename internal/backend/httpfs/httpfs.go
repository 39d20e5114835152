// Package httpfs provides a read-only filesystem backend over a plain
// HTTP mirror. Only leaf-file operations are supported: HTTP gives no
// listing, so directories are invisible and walks are unsupported.
package httpfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/metrics"
	"github.com/strata-fs/strata/internal/retry"
	"github.com/strata-fs/strata/internal/vfs"
)

// DefaultInfoCacheTTL is how long HEAD results (including failures)
// are reused before the mirror is asked again.
const DefaultInfoCacheTTL = 30 * time.Second

// Backend implements a read-only vfs.Filesystem over an HTTP base URL.
type Backend struct {
	baseURL  string
	client   *http.Client
	cacheTTL time.Duration

	mu        sync.Mutex
	infoCache map[string]cachedInfo
}

type cachedInfo struct {
	expires time.Time
	info    vfs.FileInfo
	err     error
}

// New creates an HTTP mirror backend for the given base URL.
func New(baseURL string, cacheTTL time.Duration) *Backend {
	if cacheTTL <= 0 {
		cacheTTL = DefaultInfoCacheTTL
	}
	return &Backend{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		cacheTTL:  cacheTTL,
		infoCache: make(map[string]cachedInfo),
	}
}

func (b *Backend) buildURL(path string) string {
	segments := strings.Split(vfs.NormalizePath(path), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.baseURL + "/" + strings.Join(segments, "/")
}

// fetch performs one HTTP request, retrying transport-level failures a
// fixed number of times before surfacing ErrConnection.
func (b *Backend) fetch(ctx context.Context, method, path string) (*http.Response, error) {
	u := b.buildURL(path)
	resp, err := retry.DoWithResult(ctx, retry.Transient(), func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		resp, err := b.client.Do(req)
		metrics.RecordBackendOp("http", strings.ToLower(method), time.Since(start), err == nil)
		if err != nil {
			logging.Warn("http request failed",
				zap.String("url", u), zap.Error(err))
			return nil, retry.Retryable(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, vfs.ErrConnection)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusFound,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		// Redirects and forbiddens behave like missing files.
		resp.Body.Close()
		return nil, vfs.NotFound(path)
	default:
		logging.Warn("http unexpected status treated as connection error",
			zap.String("url", u), zap.Int("status", resp.StatusCode))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %w", method, u, resp.StatusCode, vfs.ErrConnection)
	}
}

func (b *Backend) fetchInfo(ctx context.Context, path string) (vfs.FileInfo, error) {
	resp, err := b.fetch(ctx, http.MethodHead, path)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		logging.Warn("http response missing content length",
			zap.String("path", path))
		return vfs.FileInfo{}, fmt.Errorf("head %s: no content length: %w", path, vfs.ErrConnection)
	}
	info := vfs.FileInfo{Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.ModTime = t
		}
	}
	if info.ModTime.IsZero() {
		info.ModTime = time.Now()
	}
	return info, nil
}

// Info returns size and modified time for path. Results, including
// not-found and connection errors, are cached for the configured TTL
// so repeated stats of hot paths do not hammer the mirror.
func (b *Backend) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	path = vfs.NormalizePath(path)

	b.mu.Lock()
	cached, ok := b.infoCache[path]
	b.mu.Unlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.info, cached.err
	}

	info, err := b.fetchInfo(ctx, path)

	b.mu.Lock()
	b.infoCache[path] = cachedInfo{
		expires: time.Now().Add(b.cacheTTL),
		info:    info,
		err:     err,
	}
	b.mu.Unlock()

	return info, err
}

// Open fetches the file at path.
func (b *Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := b.fetch(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenWrite is unsupported: the mirror is read-only.
func (b *Backend) OpenWrite(_ context.Context, path string, _ vfs.WriteMode) (io.WriteCloser, error) {
	return nil, vfs.Unsupported("write", path)
}

// Exists reports whether a file is served at path.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	return b.IsFile(ctx, path)
}

// IsDir always reports false: HTTP exposes no directory structure.
func (b *Backend) IsDir(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// IsFile reports whether a file is served at path.
func (b *Backend) IsFile(ctx context.Context, path string) (bool, error) {
	_, err := b.Info(ctx, path)
	if err != nil {
		if vfs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MakeDir is unsupported: the mirror is read-only.
func (b *Backend) MakeDir(_ context.Context, path string, _, _ bool) error {
	return vfs.Unsupported("makedir", path)
}

// Remove is unsupported: the mirror is read-only.
func (b *Backend) Remove(_ context.Context, path string) error {
	return vfs.Unsupported("remove", path)
}

// List is unsupported: HTTP gives no directory listings.
func (b *Backend) List(_ context.Context, path string) ([]vfs.Entry, error) {
	return nil, vfs.Unsupported("list", path)
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return b.baseURL }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
