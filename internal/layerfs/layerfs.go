// Package layerfs unions an ordered list of filesystems behind one
// view. Reads search the layers in the order they were added and the
// first layer that answers positively wins; writes go exclusively to
// the single writable layer. A directory that exists on a read layer
// but not on the write layer is created there on demand, so writes
// never fail on structure the union already shows.
package layerfs

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

// ErrNoWriteLayer is returned when a write operation is attempted but
// no writable layer is configured.
var ErrNoWriteLayer = errors.New("no writable layer configured")

const testLayerName = "test-write-layer"

// Layer is one ordered filesystem participating in the union.
type Layer struct {
	Name     string
	FS       vfs.Filesystem
	Writable bool
}

// LayeredFS implements vfs.Filesystem over an ordered set of layers.
// The mutex serializes layer-list changes and the detect-missing-dir,
// create, retry sequence of repaired writes; plain reads only hold it
// long enough to snapshot the layer list.
type LayeredFS struct {
	mu         sync.Mutex
	layers     []*Layer
	writeLayer *Layer

	testMode   bool
	savedWrite *Layer
}

// New creates an empty layered filesystem.
func New() *LayeredFS {
	return &LayeredFS{}
}

// AddLayer appends a layer to the search order. At most one layer may
// be writable at a time.
func (l *LayeredFS) AddLayer(name string, fs vfs.Filesystem, writable bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, layer := range l.layers {
		if layer.Name == name {
			return fmt.Errorf("layer %s already exists", name)
		}
	}
	if writable && l.writeLayer != nil {
		return fmt.Errorf("layer %s: writable layer %s already configured", name, l.writeLayer.Name)
	}

	layer := &Layer{Name: name, FS: fs, Writable: writable}
	l.layers = append(l.layers, layer)
	if writable {
		l.writeLayer = layer
	}
	return nil
}

// RemoveLayer removes the named layer from the union.
func (l *LayeredFS) RemoveLayer(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, layer := range l.layers {
		if layer.Name != name {
			continue
		}
		l.layers = append(l.layers[:i], l.layers[i+1:]...)
		if l.writeLayer == layer {
			l.writeLayer = nil
		}
		return nil
	}
	return fmt.Errorf("layer %s not found", name)
}

// SetWriteLayer designates the named layer as the write layer. The
// previous write layer becomes read-only. This is the reversible swap
// used for isolated runs.
func (l *LayeredFS) SetWriteLayer(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, layer := range l.layers {
		if layer.Name == name {
			if l.writeLayer != nil {
				l.writeLayer.Writable = false
			}
			layer.Writable = true
			l.writeLayer = layer
			return nil
		}
	}
	return fmt.Errorf("layer %s not found", name)
}

// EnableTestMode pushes a disposable in-memory write layer in front of
// the current one. Calling it twice is a no-op.
func (l *LayeredFS) EnableTestMode() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.testMode {
		return nil
	}
	l.savedWrite = l.writeLayer
	if l.writeLayer != nil {
		l.writeLayer.Writable = false
	}
	layer := &Layer{Name: testLayerName, FS: memfs.New(), Writable: true}
	l.layers = append([]*Layer{layer}, l.layers...)
	l.writeLayer = layer
	l.testMode = true
	return nil
}

// DisableTestMode discards the disposable layer and restores the
// previous write layer. Calling it without test mode is a no-op.
func (l *LayeredFS) DisableTestMode() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.testMode {
		return nil
	}
	for i, layer := range l.layers {
		if layer.Name == testLayerName {
			l.layers = append(l.layers[:i], l.layers[i+1:]...)
			break
		}
	}
	l.writeLayer = l.savedWrite
	if l.writeLayer != nil {
		l.writeLayer.Writable = true
	}
	l.savedWrite = nil
	l.testMode = false
	return nil
}

// snapshot returns the current layer order.
func (l *LayeredFS) snapshot() []*Layer {
	l.mu.Lock()
	defer l.mu.Unlock()
	layers := make([]*Layer, len(l.layers))
	copy(layers, l.layers)
	return layers
}

// Open opens a file for reading from the first layer that has it.
func (l *LayeredFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	for _, layer := range l.snapshot() {
		ok, err := layer.FS.IsFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if ok {
			return layer.FS.Open(ctx, path)
		}
	}
	return nil, vfs.NotFound(path)
}

// OpenWrite opens a file for writing on the write layer. If the write
// fails because the parent directory exists only on a read layer, the
// directory is created on the write layer and the open retried once.
func (l *LayeredFS) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writeLayer == nil {
		return nil, fmt.Errorf("write %s: %w", path, ErrNoWriteLayer)
	}

	w, err := l.writeLayer.FS.OpenWrite(ctx, path, mode)
	if err == nil || !errors.Is(err, vfs.ErrParentDirMissing) {
		return w, err
	}

	// The parent may exist on an upper layer only. Directory creation
	// is idempotent, so a concurrent repair of the same path is
	// harmless.
	parent := vfs.ParentDir(path)
	if mkErr := l.writeLayer.FS.MakeDir(ctx, parent, true, true); mkErr != nil {
		return nil, fmt.Errorf("repair %s: %w", parent, mkErr)
	}
	metrics.RecordLayerRepair()
	logging.Debug("created missing write-layer directory",
		zap.String("dir", parent), zap.String("layer", l.writeLayer.Name))

	return l.writeLayer.FS.OpenWrite(ctx, path, mode)
}

// Exists reports whether any layer has path.
func (l *LayeredFS) Exists(ctx context.Context, path string) (bool, error) {
	for _, layer := range l.snapshot() {
		ok, err := layer.FS.Exists(ctx, path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsDir reports whether any layer has a directory at path.
func (l *LayeredFS) IsDir(ctx context.Context, path string) (bool, error) {
	for _, layer := range l.snapshot() {
		ok, err := layer.FS.IsDir(ctx, path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsFile reports whether any layer has a regular file at path.
func (l *LayeredFS) IsFile(ctx context.Context, path string) (bool, error) {
	for _, layer := range l.snapshot() {
		ok, err := layer.FS.IsFile(ctx, path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Info returns metadata from the first layer that has path.
func (l *LayeredFS) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	for _, layer := range l.snapshot() {
		ok, err := layer.FS.Exists(ctx, path)
		if err != nil {
			return vfs.FileInfo{}, err
		}
		if ok {
			return layer.FS.Info(ctx, path)
		}
	}
	return vfs.FileInfo{}, vfs.NotFound(path)
}

// MakeDir creates a directory on the write layer.
func (l *LayeredFS) MakeDir(ctx context.Context, path string, recursive, allowRecreate bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writeLayer == nil {
		return fmt.Errorf("makedir %s: %w", path, ErrNoWriteLayer)
	}
	return l.writeLayer.FS.MakeDir(ctx, path, recursive, allowRecreate)
}

// Remove deletes a file on the write layer.
func (l *LayeredFS) Remove(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writeLayer == nil {
		return fmt.Errorf("remove %s: %w", path, ErrNoWriteLayer)
	}
	return l.writeLayer.FS.Remove(ctx, path)
}

// ListFunc streams the union of the directory across all layers,
// deduplicated by name, first occurrence winning. Layers on which the
// directory does not exist are skipped. This streams layer by layer
// rather than materializing the whole union first.
func (l *LayeredFS) ListFunc(ctx context.Context, path string, fn func(vfs.Entry) error) error {
	seen := make(map[string]struct{})
	listed := false

	for _, layer := range l.snapshot() {
		entries, err := layer.FS.List(ctx, path)
		if err != nil {
			if vfs.IsNotFound(err) || errors.Is(err, vfs.ErrUnsupported) {
				continue
			}
			return err
		}
		listed = true
		for _, e := range entries {
			if _, dup := seen[e.Name]; dup {
				continue
			}
			seen[e.Name] = struct{}{}
			if err := fn(e); err != nil {
				return err
			}
		}
	}

	if !listed {
		return vfs.NotFound(path)
	}
	return nil
}

// List returns the union directory listing at path.
func (l *LayeredFS) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	var entries []vfs.Entry
	err := l.ListFunc(ctx, path, func(e vfs.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Name returns the view identifier.
func (l *LayeredFS) Name() string { return "layered" }

// Close is a no-op: layers are shared and frequently reused through
// the backend registry, so the union never closes them.
func (l *LayeredFS) Close() error { return nil }
