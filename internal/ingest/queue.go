// Package ingest contains the asynchronous document pipeline: a worker pool
// that executes processing tasks with bounded retry, the per-document
// processor, and the orchestrator that turns folders into ingestion jobs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// ErrQueueClosed is returned by Enqueue once the runner is shutting down.
var ErrQueueClosed = errors.New("task queue closed")

// Handler executes one document processing attempt. ProcessOnce returns nil
// when the task settled (success, or a skip); a non-nil error means the
// attempt failed and the runner decides whether to retry. FinalizeFailure is
// invoked exactly once when retries are exhausted or the error is permanent.
type Handler interface {
	ProcessOnce(ctx context.Context, req models.ProcessRequest, attempt int) error
	FinalizeFailure(ctx context.Context, req models.ProcessRequest, cause error)
}

// TaskRunner runs processing tasks on a fixed-size goroutine pool. Delivery
// is at-least-once: a task holds its worker slot through retries, sleeping
// the backoff between attempts.
type TaskRunner struct {
	pool        *ants.Pool
	handler     Handler
	logger      logging.Logger
	maxAttempts int
	backoff     time.Duration
	taskTimeout time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ core.TaskQueue = (*TaskRunner)(nil)

type RunnerConfig struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	TaskTimeout time.Duration
}

func NewTaskRunner(handler Handler, logger logging.Logger, cfg RunnerConfig) (*TaskRunner, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &TaskRunner{
		pool:        pool,
		handler:     handler,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		taskTimeout: cfg.TaskTimeout,
	}, nil
}

// Enqueue hands the task to the pool without blocking the caller: when all
// workers are busy the submission parks in its own goroutine until a slot
// frees up.
func (r *TaskRunner) Enqueue(req models.ProcessRequest) error {
	if r.closed.Load() {
		return ErrQueueClosed
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.pool.Submit(func() { r.run(req) })
		if err != nil {
			// Pool released mid-shutdown; the task is dropped and redelivery
			// is up to the caller on the next run.
			r.logger.Error(context.Background(), "task submission failed",
				"drive_file_id", req.DriveFileID, "job_id", req.JobID, "error", err)
		}
	}()
	return nil
}

// run drives one task through its retry loop.
func (r *TaskRunner) run(req models.ProcessRequest) {
	for attempt := 1; ; attempt++ {
		err := r.processAttempt(req, attempt)
		if err == nil {
			return
		}

		if core.IsPermanent(err) || attempt >= r.maxAttempts {
			finCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			r.handler.FinalizeFailure(finCtx, req, err)
			cancel()
			return
		}

		r.logger.Warn(context.Background(), "task attempt failed, retrying",
			"drive_file_id", req.DriveFileID, "job_id", req.JobID,
			"attempt", attempt, "backoff", r.backoff.String(), "error", err)
		time.Sleep(r.backoff)
	}
}

func (r *TaskRunner) processAttempt(req models.ProcessRequest, attempt int) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
	defer cancel()
	return r.handler.ProcessOnce(ctx, req, attempt)
}

// Close stops accepting tasks, waits for in-flight ones to settle and
// releases the pool.
func (r *TaskRunner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.wg.Wait()
	r.pool.Release()
}
