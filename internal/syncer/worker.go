package syncer

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/logging"
)

// runParallel streams diff actions into a bounded queue consumed by a
// fixed pool of workers. The closed channel is the "finished" signal:
// workers drain it and exit once the producer is done. Any worker
// failure flips the shared errored flag; the run keeps going and the
// aggregate result is a single boolean-grade error. The diff emits at
// most one action per path, so concurrent workers never touch the same
// path.
func (s *Syncer) runParallel(ctx context.Context, diff *Diff) error {
	queueSize := s.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	queue := make(chan Action, queueSize)

	var errored atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for action := range queue {
				if err := s.apply(ctx, action); err != nil {
					errored.Store(true)
					logging.Error("sync action failed",
						zap.Int("worker", worker),
						zap.String("action", string(action.Op)),
						zap.String("path", action.Path),
						zap.Error(err))
				}
			}
		}(i)
	}

	for {
		action, ok := diff.Next()
		if !ok {
			break
		}
		if action.Op == OpDelete && !s.DeleteMissing {
			continue
		}
		queue <- action
	}
	close(queue)
	wg.Wait()

	if err := diff.Err(); err != nil {
		return err
	}
	if errored.Load() {
		return ErrSyncIncomplete
	}
	return nil
}
