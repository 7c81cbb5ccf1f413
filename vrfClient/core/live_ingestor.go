package core

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-vrf-node/vrfClient/chains/svm"
	"github.com/pushchain/push-vrf-node/vrfClient/constant"
	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// LiveIngestor follows the log subscription of one program and dispatches a
// pipeline task for every newly stored transaction.
type LiveIngestor struct {
	program          solana.PublicKey
	programID        string
	subscriber       LogSubscriber
	store            TransactionStore
	processor        *Processor
	dispatcher       *Dispatcher
	resubscribeDelay time.Duration
	metrics          *metrics.Metrics
	logger           zerolog.Logger
	wg               sync.WaitGroup
}

// NewLiveIngestor creates a live ingestor for program.
func NewLiveIngestor(
	program solana.PublicKey,
	subscriber LogSubscriber,
	store TransactionStore,
	processor *Processor,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *LiveIngestor {
	return &LiveIngestor{
		program:          program,
		programID:        program.String(),
		subscriber:       subscriber,
		store:            store,
		processor:        processor,
		dispatcher:       dispatcher,
		resubscribeDelay: constant.ResubscribeDelay,
		metrics:          m,
		logger: logger.With().
			Str("component", "live_ingestor").
			Str("program_id", program.String()).
			Logger(),
	}
}

// Start opens the first subscription and follows it in the background. A
// failed first handshake is returned to the caller.
func (l *LiveIngestor) Start(ctx context.Context) error {
	stream, err := l.subscriber.SubscribeLogs(ctx, l.program)
	if err != nil {
		return err
	}
	l.logger.Info().Msg("listening for program logs")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx, stream)
	}()
	return nil
}

// Wait blocks until the ingestor has stopped.
func (l *LiveIngestor) Wait() {
	l.wg.Wait()
}

func (l *LiveIngestor) run(ctx context.Context, stream svm.LogStream) {
	for {
		l.consume(ctx, stream)
		stream.Close()
		if ctx.Err() != nil {
			l.logger.Info().Msg("context cancelled, stopping live ingestor")
			return
		}

		l.logger.Warn().Dur("delay", l.resubscribeDelay).Msg("log subscription stopped, resubscribing")
		for {
			if sleepWithContext(ctx, l.resubscribeDelay) != nil {
				return
			}
			var err error
			stream, err = l.subscriber.SubscribeLogs(ctx, l.program)
			if err == nil {
				break
			}
			l.logger.Error().Err(err).Msg("failed to resubscribe to program logs")
		}
		l.metrics.ObserveResubscribe(l.programID)
		l.logger.Info().Msg("listening for program logs")
	}
}

func (l *LiveIngestor) consume(ctx context.Context, stream svm.LogStream) {
	for {
		n, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn().Err(err).Msg("log subscription stream ended")
			}
			return
		}
		l.handle(ctx, n)
	}
}

func (l *LiveIngestor) handle(ctx context.Context, n *svm.LogNotification) {
	log := l.logger.With().Str("transaction", n.Signature).Logger()
	if n.Failed() {
		log.Info().Interface("err", n.Err).Msg("skipping failed transaction")
		return
	}

	inserted, err := l.store.InsertNew(ctx, l.programID, n.Signature, txstore.JoinLogs(n.Logs))
	l.metrics.ObserveIngested(metrics.SourceLive, l.programID, inserted, err)
	if err != nil {
		log.Error().Err(err).Msg("failed to add new transaction")
		return
	}
	if !inserted {
		return
	}
	log.Info().Int("log_lines", len(n.Logs)).Msg("new transaction added")

	logs := n.Logs
	if err := l.dispatcher.Go(ctx, func(ctx context.Context) {
		l.processor.Process(ctx, metrics.SourceLive, l.programID, n.Signature, logs)
	}); err != nil {
		log.Warn().Err(err).Msg("transaction left for the retry sweep")
	}
}
