package core

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/pushchain/push-vrf-node/vrfClient/chains/svm"
	vrferrors "github.com/pushchain/push-vrf-node/vrfClient/errors"
	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// BackfillConfig configures the Backfiller.
type BackfillConfig struct {
	Programs  []solana.PublicKey
	Interval  time.Duration
	CacheSize int
	PageSize  int
	RPS       int
	Retry     *vrferrors.RetryConfig
}

// Backfiller periodically walks the finalized history of every program and
// runs the pipeline for transactions that never reached the store, such as
// ones emitted while the node was down.
type Backfiller struct {
	cfg       BackfillConfig
	history   HistorySource
	store     TransactionStore
	processor *Processor
	caches    map[solana.PublicKey]*SignatureCache
	limiter   ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewBackfiller creates a backfiller.
func NewBackfiller(cfg BackfillConfig, history HistorySource, store TransactionStore, processor *Processor, m *metrics.Metrics, logger zerolog.Logger) *Backfiller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 5000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Retry == nil {
		cfg.Retry = vrferrors.DefaultRetryConfig()
	}

	caches := make(map[solana.PublicKey]*SignatureCache, len(cfg.Programs))
	for _, p := range cfg.Programs {
		caches[p] = NewSignatureCache(cfg.CacheSize)
	}

	return &Backfiller{
		cfg:       cfg,
		history:   history,
		store:     store,
		processor: processor,
		caches:    caches,
		limiter:   ratelimit.New(cfg.RPS),
		metrics:   m,
		logger:    logger.With().Str("component", "backfiller").Logger(),
	}
}

// Start runs a pass immediately and then every interval until ctx ends.
func (b *Backfiller) Start(ctx context.Context) {
	b.logger.Info().
		Dur("interval", b.cfg.Interval).
		Int("programs", len(b.cfg.Programs)).
		Msg("starting backfiller")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			b.RunOnce(ctx)
			if sleepWithContext(ctx, b.cfg.Interval) != nil {
				b.logger.Info().Msg("context cancelled, stopping backfiller")
				return
			}
		}
	}()
}

// Wait blocks until the backfiller has stopped.
func (b *Backfiller) Wait() {
	b.wg.Wait()
}

// RunOnce backfills every program once and returns the number of
// transactions newly stored.
func (b *Backfiller) RunOnce(ctx context.Context) int {
	total := 0
	for _, program := range b.cfg.Programs {
		if ctx.Err() != nil {
			break
		}
		total += b.backfillProgram(ctx, program)
	}
	return total
}

func (b *Backfiller) backfillProgram(ctx context.Context, program solana.PublicKey) int {
	programID := program.String()
	log := b.logger.With().Str("program_id", programID).Logger()
	cache := b.caches[program]

	// The cursor is the last signature appended to the cache; without one
	// the walk starts from the newest transaction.
	var before string
	recent, err := b.store.ListRecentSignatures(ctx, programID, b.cfg.PageSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to load recent transactions")
	} else {
		cache.Extend(recent)
		before, _ = cache.Last()
	}

	var signatures []svm.SignatureInfo
	err = vrferrors.RetryWithConfig(ctx, func() error {
		var innerErr error
		signatures, innerErr = b.history.GetSignaturesBefore(ctx, program, before, b.cfg.PageSize)
		return innerErr
	}, b.cfg.Retry)
	if err != nil {
		log.Warn().Err(err).Str("before", before).Msg("failed to fetch signatures")
		return 0
	}

	candidates := make([]string, 0, len(signatures))
	for _, s := range signatures {
		if s.Failed || cache.Contains(s.Signature) {
			continue
		}
		candidates = append(candidates, s.Signature)
	}
	if len(candidates) == 0 {
		return 0
	}
	log.Info().
		Int("candidates", len(candidates)).
		Int("fetched", len(signatures)).
		Msg("processing old transactions")

	stored := 0
	for _, sig := range candidates {
		if ctx.Err() != nil {
			break
		}
		if b.ingest(ctx, programID, sig) {
			stored++
		}
	}
	return stored
}

// ingest fetches one transaction, stores it and, if it was new, runs the
// pipeline inline.
func (b *Backfiller) ingest(ctx context.Context, programID, signature string) bool {
	log := b.logger.With().Str("program_id", programID).Str("transaction", signature).Logger()

	var tx *svm.TransactionLogs
	err := vrferrors.RetryWithConfig(ctx, func() error {
		b.limiter.Take()
		var innerErr error
		tx, innerErr = b.history.GetTransactionLogs(ctx, signature)
		return innerErr
	}, b.cfg.Retry)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch transaction")
		return false
	}
	if tx == nil || tx.Failed || tx.Logs == nil {
		return false
	}

	inserted, err := b.store.InsertNew(ctx, programID, signature, txstore.JoinLogs(tx.Logs))
	b.metrics.ObserveIngested(metrics.SourceBackfill, programID, inserted, err)
	if err != nil {
		log.Error().Err(err).Msg("failed to add old transaction")
		return false
	}
	if !inserted {
		return false
	}

	b.processor.Process(ctx, metrics.SourceBackfill, programID, signature, tx.Logs)
	return true
}
