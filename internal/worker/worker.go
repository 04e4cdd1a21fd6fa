// Package worker implements the harvest pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/checkpoint"
	"github.com/kestreldata/channelharvest/internal/harvest"
	"github.com/kestreldata/channelharvest/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// TaskDelay is the politeness pause between completed tasks.
	TaskDelay time.Duration
	// HaltOnFailure stops the run instead of skipping a task whose
	// transient retries are exhausted.
	HaltOnFailure bool
}

// Worker consumes tasks from the shared queue and drives each through the
// orchestrator, committing the checkpoint after every durable outcome.
type Worker struct {
	id      int
	orch    *harvest.Orchestrator
	tracker *checkpoint.Tracker
	tasks   <-chan harvest.Task
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker reading from tasks.
func New(
	id int,
	orch *harvest.Orchestrator,
	tracker *checkpoint.Tracker,
	tasks <-chan harvest.Task,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		orch:    orch,
		tracker: tracker,
		tasks:   tasks,
		cfg:     cfg,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run consumes tasks until the queue drains, the context finishes, or the
// credential pool empties. The in-flight task always runs to its terminal
// outcome; only dispatch of new tasks stops early.
func (w *Worker) Run(ctx context.Context) error {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-w.tasks:
			if !ok {
				return nil
			}
			if err := w.process(ctx, task); err != nil {
				return err
			}
			harvest.Pause(ctx, w.cfg.TaskDelay)
		}
	}
}

func (w *Worker) process(ctx context.Context, task harvest.Task) error {
	start := time.Now()
	result := w.orch.Process(ctx, task)
	metrics.ObserveTaskDuration(time.Since(start))

	if errors.Is(result.Err, harvest.ErrCredentialsExhausted) {
		w.logger.Error("credential pool empty, stopping run",
			zap.Int("task_index", task.Index),
			zap.String("handle", task.Handle),
		)
		return result.Err
	}
	if !result.Outcome.Committable() {
		// A cancelled run aborts the task mid-flight; it must stay
		// uncommitted so the next run redoes it from the start.
		if ctx.Err() != nil || errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
			w.logger.Warn("task aborted mid-flight, leaving it for the next run",
				zap.Int("task_index", task.Index),
				zap.String("handle", task.Handle),
			)
			return result.Err
		}
		return fmt.Errorf("task %d ended without terminal outcome: %w", task.Index, result.Err)
	}

	metrics.TaskCompleted(string(result.Outcome))
	if result.Videos > 0 {
		metrics.VideosIngested(result.Videos)
	}

	if result.Outcome == harvest.OutcomeFailed && w.cfg.HaltOnFailure {
		return fmt.Errorf("task %d (%s) failed and halt_on_failure is set: %w",
			task.Index, task.Handle, result.Err)
	}

	if err := w.tracker.Commit(task.Index+1, task.Handle); err != nil {
		// Without a durable cursor the run would reprocess committed work;
		// treat it as fatal.
		return fmt.Errorf("worker %d: %w", w.id, err)
	}

	w.logger.Info("task complete",
		zap.Int("task_index", task.Index),
		zap.String("handle", task.Handle),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("videos", result.Videos),
	)
	return nil
}
