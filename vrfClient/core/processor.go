package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	vrferrors "github.com/pushchain/push-vrf-node/vrfClient/errors"
	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// Pipeline outcomes.
const (
	OutcomeResponded = "responded"
	OutcomeNoop      = "noop"
	OutcomeFatal     = "fatal"
	OutcomeRetryable = "retryable"
	OutcomeSkipped   = "skipped"
)

// Processor runs the claim, respond and record pipeline for one transaction.
// Failures are recorded in the store or logged; nothing is returned.
type Processor struct {
	store     TransactionStore
	responder Responder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(store TransactionStore, responder Responder, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		store:     store,
		responder: responder,
		metrics:   m,
		logger:    logger.With().Str("component", "processor").Logger(),
	}
}

// Process claims the transaction and, when the claim wins, generates and
// records its response. It returns the outcome.
func (p *Processor) Process(ctx context.Context, source, programID, transaction string, logs []string) string {
	log := p.logger.With().
		Str("source", source).
		Str("program_id", programID).
		Str("transaction", transaction).
		Logger()

	claimed, err := p.store.Claim(ctx, programID, transaction)
	if err != nil {
		p.storeError(log, "claim", err)
		return OutcomeSkipped
	}
	if !claimed {
		log.Debug().Msg("transaction already claimed or finished")
		return OutcomeSkipped
	}

	started := time.Now()
	resp, err := p.responder.Respond(ctx, transaction, logs)

	// Completion must be recorded even when shutdown interrupted the attempt.
	writeCtx := context.WithoutCancel(ctx)

	var outcome string
	switch {
	case err != nil:
		pe := vrferrors.Classify(err)
		outcome = OutcomeRetryable
		if pe.Fatal {
			outcome = OutcomeFatal
		}
		log.Warn().Err(err).Str("kind", pe.Kind()).Msg("failed to process transaction")
		if ferr := p.store.Fail(writeCtx, programID, transaction, pe.Fatal, err.Error()); ferr != nil {
			p.storeError(log, "fail", ferr)
		}

	case resp == nil:
		outcome = OutcomeNoop
		log.Info().Msg("processed, no vrf request")
		if cerr := p.store.CompleteNoop(writeCtx, programID, transaction); cerr != nil {
			p.storeError(log, "complete_noop", cerr)
		}

	default:
		outcome = OutcomeResponded
		log.Info().Str("response_transaction", resp.ResponseTransaction).Msg("processed, vrf response submitted")
		if cerr := p.store.CompleteWithResponse(writeCtx, programID, transaction, resp.ResponseTransaction, resp.Seeds, resp.Proof); cerr != nil {
			p.storeError(log, "complete_with_response", cerr)
		}
	}

	p.metrics.ObserveOutcome(source, outcome, started)
	return outcome
}

func (p *Processor) storeError(log zerolog.Logger, op string, err error) {
	if txstore.IsAnomaly(err) {
		p.metrics.ObserveAnomaly(op)
		log.Info().Bool("anomaly", true).Str("operation", op).Err(err).Msg("store update affected no row")
		return
	}
	log.Error().Str("operation", op).Err(err).Msg("store operation failed")
}
