package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/metrics"
	"github.com/strata-fs/strata/internal/vfs"
)

// ErrSyncIncomplete is returned by a parallel run when one or more
// actions failed. Individual failing paths appear only in the log.
var ErrSyncIncomplete = errors.New("sync completed with errors")

// maxUploadAttempts bounds the per-file recovery loop for uploads.
// Only structurally recoverable failures (missing parent directory,
// file briefly missing mid-copy) consume attempts.
const maxUploadAttempts = 100

// defaultQueueSize bounds the pending-action queue of a parallel run.
const defaultQueueSize = 1000

// Syncer mutates Target so its file set matches Origin's.
type Syncer struct {
	Origin vfs.Filesystem
	Target vfs.Filesystem

	// DeleteMissing removes target-only files. Off by default: the
	// default run is non-destructive.
	DeleteMissing bool

	// Workers > 0 applies actions on a fixed pool of that size;
	// 0 applies them sequentially in diff order.
	Workers int

	// QueueSize caps pending actions in a parallel run (default 1000).
	QueueSize int
}

// Run walks both filesystems, diffs them, and applies the difference.
// Sequential runs stop at the first unrecoverable per-file error.
// Parallel runs always drain the diff and report only ErrSyncIncomplete
// when anything failed.
func (s *Syncer) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RecordSyncRun(time.Since(start))
	}()

	diff := NewDiff(
		vfs.NewFileWalker(ctx, s.Origin, ""),
		vfs.NewFileWalker(ctx, s.Target, ""),
	)

	logging.Info("sync started",
		zap.String("origin", s.Origin.Name()),
		zap.String("target", s.Target.Name()),
		zap.Bool("delete_missing", s.DeleteMissing),
		zap.Int("workers", s.Workers))

	var err error
	if s.Workers > 0 {
		err = s.runParallel(ctx, diff)
	} else {
		err = s.runSequential(ctx, diff)
	}

	logging.Info("sync finished",
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

func (s *Syncer) runSequential(ctx context.Context, diff *Diff) error {
	for {
		action, ok := diff.Next()
		if !ok {
			break
		}
		if action.Op == OpDelete && !s.DeleteMissing {
			continue
		}
		if err := s.apply(ctx, action); err != nil {
			return err
		}
	}
	return diff.Err()
}

// apply executes one action. Delete and skip are never retried; a
// delete of an already absent file counts as success.
func (s *Syncer) apply(ctx context.Context, action Action) error {
	metrics.RecordSyncAction(string(action.Op))

	switch action.Op {
	case OpUpload:
		logging.Info("uploading", zap.String("path", action.Path))
		return s.upload(ctx, action.Path)

	case OpDelete:
		logging.Info("deleting", zap.String("path", action.Path))
		err := s.Target.Remove(ctx, action.Path)
		if err != nil && !vfs.IsNotFound(err) {
			return err
		}
		return nil

	case OpSkip:
		logging.Debug("ok", zap.String("path", action.Path))
		return nil

	default:
		return fmt.Errorf("unknown sync action %q", action.Op)
	}
}

// upload copies one file from origin to target, recovering from
// missing target directories and from the file briefly vanishing on
// the origin. A dangling origin symlink is abandoned gracefully: that
// is bad source data, not a transient failure.
func (s *Syncer) upload(ctx context.Context, path string) error {
	var lastErr error

	for attempt := 0; attempt < maxUploadAttempts; attempt++ {
		if attempt > 0 {
			metrics.RecordSyncUploadRetry()
		}

		err := vfs.CopyFile(ctx, s.Origin, path, s.Target, path)
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, vfs.ErrParentDirMissing):
			if mkErr := s.Target.MakeDir(ctx, vfs.ParentDir(path), true, true); mkErr != nil {
				lastErr = mkErr
			}

		case vfs.IsNotFound(err):
			exists, exErr := s.Origin.Exists(ctx, path)
			if exErr != nil {
				lastErr = exErr
				continue
			}
			if exists {
				// The file is there; the copy must have tripped on
				// target structure. Repair and go again.
				if mkErr := s.Target.MakeDir(ctx, vfs.ParentDir(path), true, true); mkErr != nil {
					lastErr = mkErr
				}
				continue
			}
			if sp, ok := s.Origin.(vfs.SysPather); ok {
				if sysPath, has := sp.SysPath(path); has && isDanglingSymlink(sysPath) {
					logging.Warn("bad symlink, skipping upload",
						zap.String("path", path), zap.String("syspath", sysPath))
					return nil
				}
			}

		default:
			// Everything else is not recoverable by structure repair.
			return fmt.Errorf("upload %s: %w", path, err)
		}
	}

	return fmt.Errorf("upload %s: giving up after %d attempts: %w", path, maxUploadAttempts, lastErr)
}

// isDanglingSymlink reports whether sysPath is a symlink whose target
// does not exist.
func isDanglingSymlink(sysPath string) bool {
	info, err := os.Lstat(sysPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	_, err = os.Stat(sysPath)
	return os.IsNotExist(err)
}
