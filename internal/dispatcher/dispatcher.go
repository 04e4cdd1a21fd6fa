// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestreldata/channelharvest/internal/checkpoint"
	"github.com/kestreldata/channelharvest/internal/harvest"
	"github.com/kestreldata/channelharvest/internal/worker"
)

// PoolSize bounds concurrency by the number of usable credentials: workers
// beyond that only contend for quota without adding throughput.
func PoolSize(configured, credentials int) int {
	if configured < 1 {
		configured = 1
	}
	if credentials < 1 {
		credentials = 1
	}
	if credentials < configured {
		return credentials
	}
	return configured
}

// Dispatcher loads the resumable task list into a shared queue and fans it
// out to a fixed pool of workers.
type Dispatcher struct {
	orch    *harvest.Orchestrator
	tracker *checkpoint.Tracker
	size    int
	cfg     worker.Config
	logger  *zap.Logger
}

// New creates a Dispatcher with a pool of size workers.
func New(
	orch *harvest.Orchestrator,
	tracker *checkpoint.Tracker,
	size int,
	cfg worker.Config,
	logger *zap.Logger,
) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		orch:    orch,
		tracker: tracker,
		size:    size,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run processes every task and blocks until the pool drains or a
// run-stopping error occurs. On credential exhaustion, dispatch of new tasks
// stops, in-flight tasks finish their terminal outcome, and
// harvest.ErrCredentialsExhausted is returned after all workers exit. No
// task is delivered to more than one worker.
func (d *Dispatcher) Run(ctx context.Context, tasks []harvest.Task) error {
	if len(tasks) == 0 {
		d.logger.Info("nothing to do, input fully processed")
		return nil
	}

	queue := make(chan harvest.Task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	d.logger.Info("dispatching",
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", d.size),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.size; i++ {
		w := worker.New(i, d.orch, d.tracker, queue, d.cfg, d.logger)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
