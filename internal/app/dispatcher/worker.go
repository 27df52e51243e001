package dispatcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/infra/observability"
)

// ─── Background Worker ──────────────────────────────────────────────────────
// Request handlers schedule predictor work fire-and-forget: the response
// never depends on the dispatch result. The worker bounds concurrency with
// a semaphore and swallows failures after logging them; the log row stays
// in place for an operator-driven retry.

// Worker runs dispatches in the background with bounded concurrency.
type Worker struct {
	d   *Dispatcher
	ctx context.Context
	sem chan struct{}
	log zerolog.Logger
	wg  sync.WaitGroup
}

// NewWorker creates a background dispatch worker. ctx bounds the lifetime
// of all scheduled work; maxConcurrent bounds parallel dispatches.
func NewWorker(ctx context.Context, d *Dispatcher, maxConcurrent int, log zerolog.Logger) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Worker{
		d:   d,
		ctx: ctx,
		sem: make(chan struct{}, maxConcurrent),
		log: log,
	}
}

// Enqueue schedules one dispatch. Each log id must be enqueued exactly once.
func (w *Worker) Enqueue(logID string) {
	w.run(logID, nil)
}

// EnqueueWithPriorState schedules a dispatch carrying the coarse inventory
// state captured before the caller mutated the inventory row.
func (w *Worker) EnqueueWithPriorState(logID string, prior domain.InventoryState) {
	w.run(logID, &prior)
}

func (w *Worker) run(logID string, prior *domain.InventoryState) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-w.ctx.Done():
			return
		}

		var err error
		if prior != nil {
			err = w.d.ProcessWithPriorState(w.ctx, logID, *prior)
		} else {
			err = w.d.Process(w.ctx, logID)
		}
		if err != nil {
			observability.DispatchFailures.Inc()
			w.log.Error().Err(err).Str("log_id", logID).Msg("background dispatch failed")
		}
	}()
}

// Wait blocks until all scheduled dispatches finish. Used on shutdown and
// in tests.
func (w *Worker) Wait() {
	w.wg.Wait()
}
