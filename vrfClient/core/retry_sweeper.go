package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
)

// RetrySweeper periodically re-runs the pipeline for transactions whose last
// attempt failed with a retryable error.
type RetrySweeper struct {
	store     TransactionStore
	processor *Processor
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewRetrySweeper creates a sweeper. Rows become eligible once they have not
// been touched for twice the interval.
func NewRetrySweeper(store TransactionStore, processor *Processor, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *RetrySweeper {
	return &RetrySweeper{
		store:     store,
		processor: processor,
		interval:  interval,
		metrics:   m,
		logger:    logger.With().Str("component", "retry_sweeper").Logger(),
	}
}

// Start sweeps immediately and then waits interval after each sweep.
func (r *RetrySweeper) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("starting retry sweeper")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			r.Sweep(ctx)
			if sleepWithContext(ctx, r.interval) != nil {
				r.logger.Info().Msg("context cancelled, stopping retry sweeper")
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has stopped.
func (r *RetrySweeper) Wait() {
	r.wg.Wait()
}

// Sweep processes one batch of retryable transactions sequentially and
// returns the number of rows picked up.
func (r *RetrySweeper) Sweep(ctx context.Context) int {
	rows, err := r.store.ListRetryable(ctx, 2*r.interval)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list retryable transactions")
		return 0
	}
	r.metrics.ObserveRetryBatch(len(rows))
	if len(rows) == 0 {
		return 0
	}
	r.logger.Info().Int("count", len(rows)).Msg("retrying transactions")

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		r.processor.Process(ctx, metrics.SourceRetry, row.ProgramID, row.Transaction, row.Logs())
	}
	return len(rows)
}
