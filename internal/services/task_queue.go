package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/pkg/logger"
)

const (
	TaskTypeSnapshotSave = "snapshot:save"
	snapshotQueueName    = "snapshots"
)

// SnapshotTask carries one snapshot to the write-behind worker. Seq grows
// monotonically so the worker can discard stale deliveries.
type SnapshotTask struct {
	Seq      int64            `json:"seq"`
	Snapshot *models.Snapshot `json:"snapshot"`
}

// SnapshotWriter hands a snapshot copy to durable storage.
type SnapshotWriter interface {
	// Write persists or enqueues the snapshot. The caller owns no reference
	// to snap afterwards.
	Write(ctx context.Context, snap *models.Snapshot) error
	// IsAsync reports whether Write returns before the snapshot is durable.
	IsAsync() bool
	Close() error
}

// NewSnapshotWriter picks the asynq queue when Redis is enabled and
// reachable, and the inline writer otherwise.
func NewSnapshotWriter(cfg *config.Config, persister Persister) SnapshotWriter {
	if !cfg.Redis.Enabled {
		logger.Infof("[SnapshotWriter] Inline writes (Redis disabled)")
		return NewInlineSnapshotWriter(persister)
	}

	queue, err := NewAsyncSnapshotQueue(&cfg.Redis)
	if err != nil {
		logger.Warnf("[SnapshotWriter] Redis unavailable, falling back to inline writes: %v", err)
		return NewInlineSnapshotWriter(persister)
	}
	logger.Infof("[SnapshotWriter] Write-behind queue initialized with Redis at %s", cfg.Redis.Addr)
	return queue
}

// InlineSnapshotWriter saves synchronously inside the calling handler.
type InlineSnapshotWriter struct {
	persister Persister
}

func NewInlineSnapshotWriter(persister Persister) *InlineSnapshotWriter {
	return &InlineSnapshotWriter{persister: persister}
}

func (w *InlineSnapshotWriter) Write(ctx context.Context, snap *models.Snapshot) error {
	return w.persister.Save(ctx, snap)
}

func (w *InlineSnapshotWriter) IsAsync() bool { return false }
func (w *InlineSnapshotWriter) Close() error  { return nil }

// AsyncSnapshotQueue enqueues snapshots for SnapshotWorker through asynq.
type AsyncSnapshotQueue struct {
	client *asynq.Client

	mu      sync.Mutex
	lastSeq int64
}

func NewAsyncSnapshotQueue(cfg *config.RedisConfig) (*AsyncSnapshotQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	// Verify connectivity before committing to write-behind.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncSnapshotQueue{client: client}, nil
}

// nextSeq is wall-clock based so sequences keep increasing across restarts.
func (q *AsyncSnapshotQueue) nextSeq() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= q.lastSeq {
		seq = q.lastSeq + 1
	}
	q.lastSeq = seq
	return seq
}

func (q *AsyncSnapshotQueue) Write(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(SnapshotTask{Seq: q.nextSeq(), Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encode snapshot task: %w", err)
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeSnapshotSave, payload),
		asynq.Queue(snapshotQueueName),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("enqueue snapshot: %w", err)
	}

	logger.Debug().Str("task_id", info.ID).Msg("snapshot enqueued")
	return nil
}

func (q *AsyncSnapshotQueue) IsAsync() bool { return true }

func (q *AsyncSnapshotQueue) Close() error {
	return q.client.Close()
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
