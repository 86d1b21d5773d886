// Package worker implements the stage execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

// Runner executes one stage task.
type Runner interface {
	Run(ctx context.Context, task pipeline.StageTask) error
}

// Source yields queued stage tasks.
type Source interface {
	Dequeue(ctx context.Context) (pipeline.StageTask, error)
}

// Config controls Worker behavior.
type Config struct {
	// StageTimeout bounds a single stage; zero disables the bound.
	StageTimeout time.Duration
	// ID labels the worker in logs.
	ID int
}

// Worker consumes stage tasks and hands them to the runner.
type Worker struct {
	queue  Source
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue Source, runner Runner, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run blocks, consuming tasks until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, pipeline.ErrQueueClosed) {
				w.logger.Debug("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued stage",
			zap.String("run_id", task.Ticket.RunID),
			zap.Stringer("stage", task.Ticket.Stage),
			zap.Duration("queued_for", time.Since(task.EnqueuedAt)),
		)
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task pipeline.StageTask) {
	if w.runner == nil {
		w.logger.Error("no runner configured", zap.String("run_id", task.Ticket.RunID))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.StageTimeout)
		defer cancel()
	}

	err := w.safeRun(ctx, task)
	switch {
	case err == nil:
	case errors.Is(err, brief.ErrStaleTicket):
		w.logger.Debug("stage superseded", zap.String("run_id", task.Ticket.RunID), zap.Stringer("stage", task.Ticket.Stage))
	default:
		w.logger.Debug("stage returned error",
			zap.String("run_id", task.Ticket.RunID),
			zap.Stringer("stage", task.Ticket.Stage),
			zap.Error(err),
		)
	}
}

func (w *Worker) safeRun(ctx context.Context, task pipeline.StageTask) (err error) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("runner panicked", zap.Any("panic", p), zap.String("run_id", task.Ticket.RunID))
			err = fmt.Errorf("runner panicked: %v", p)
		}
	}()
	return w.runner.Run(ctx, task)
}
