package vfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/logging"
)

// FindOldFiles walks fs under root and returns the paths of files whose
// modified time is older than the cutoff age.
func FindOldFiles(ctx context.Context, fs Filesystem, root string, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)
	var old []string

	walker := NewFileWalker(ctx, fs, root)
	for {
		node, ok := walker.Next()
		if !ok {
			break
		}
		info, err := fs.Info(ctx, node.Path)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if info.ModTime.Before(cutoff) {
			old = append(old, node.Path)
		}
	}
	return old, walker.Err()
}

// CleanupOldFiles removes files older than the cutoff age under each of
// the given roots. Roots that do not exist are skipped, as are files
// that disappear concurrently. Returns the removed paths.
func CleanupOldFiles(ctx context.Context, fs Filesystem, olderThan time.Duration, roots ...string) ([]string, error) {
	var removed []string
	for _, root := range roots {
		exists, err := fs.Exists(ctx, root)
		if err != nil {
			return removed, err
		}
		if !exists {
			continue
		}
		old, err := FindOldFiles(ctx, fs, root, olderThan)
		if err != nil {
			return removed, err
		}
		for _, path := range old {
			if err := fs.Remove(ctx, path); err != nil {
				if IsNotFound(err) {
					continue
				}
				return removed, err
			}
			logging.Debug("removed old file", zap.String("path", path))
			removed = append(removed, path)
		}
	}
	return removed, nil
}
