package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/pkg/logger"
)

// SnapshotWorker drains the write-behind queue into the Persister. It runs
// with a concurrency of one so saves never interleave.
type SnapshotWorker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	persister Persister
	wg        sync.WaitGroup

	// backlog counts snapshot tasks not yet done with.
	backlog func() (int, error)

	mu      sync.Mutex
	running bool
	lastSeq int64
}

// NewSnapshotWorker returns nil when Redis is disabled.
func NewSnapshotWorker(cfg *config.RedisConfig, persister Persister) *SnapshotWorker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				snapshotQueueName: 1,
			},
			// Linear and short, so a startup Drain never waits long on retries.
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Errorf("[SnapshotWorker] Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	inspector := asynq.NewInspector(redisClientOpt(cfg))
	w := &SnapshotWorker{
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: inspector,
		persister: persister,
	}
	w.backlog = func() (int, error) {
		queues, err := inspector.Queues()
		if err != nil {
			return 0, err
		}
		if !slices.Contains(queues, snapshotQueueName) {
			return 0, nil
		}
		info, err := inspector.GetQueueInfo(snapshotQueueName)
		if err != nil {
			return 0, err
		}
		return info.Pending + info.Active + info.Scheduled + info.Retry, nil
	}
	return w
}

func (w *SnapshotWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeSnapshotSave, w.handleSnapshotTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[SnapshotWorker] Starting...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[SnapshotWorker] Server error: %v", err)
		}
	}()

	return nil
}

func (w *SnapshotWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	logger.Infof("[SnapshotWorker] Shutting down...")
	w.server.Shutdown()
	w.wg.Wait()
	if w.inspector != nil {
		w.inspector.Close()
	}
	logger.Infof("[SnapshotWorker] Shutdown complete")
}

const drainPollInterval = 100 * time.Millisecond

// Drain blocks until every snapshot task left by a previous run has been
// saved or given up on. Call it after Start and before loading state, so the
// load sees the newest durable snapshot.
func (w *SnapshotWorker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		n, err := w.backlog()
		if err != nil {
			return fmt.Errorf("inspect snapshot queue: %w", err)
		}
		if n == 0 {
			return nil
		}
		logger.Debug().Int("backlog", n).Msg("waiting for queued snapshots")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%d snapshot tasks still queued: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (w *SnapshotWorker) handleSnapshotTask(ctx context.Context, t *asynq.Task) error {
	var task SnapshotTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		// A malformed payload will never succeed; skip retries.
		return fmt.Errorf("decode snapshot task: %v: %w", err, asynq.SkipRetry)
	}
	return w.apply(ctx, &task)
}

// apply saves task unless a newer sequence has already been written.
func (w *SnapshotWorker) apply(ctx context.Context, task *SnapshotTask) error {
	if task.Snapshot == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if task.Seq <= w.lastSeq {
		logger.Debug().Int64("seq", task.Seq).Int64("last_seq", w.lastSeq).Msg("stale snapshot skipped")
		return nil
	}

	task.Snapshot.Normalize()
	if err := w.persister.Save(ctx, task.Snapshot); err != nil {
		return err
	}
	w.lastSeq = task.Seq
	return nil
}
