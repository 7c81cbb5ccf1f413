package core

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-vrf-node/vrfClient/api"
	"github.com/pushchain/push-vrf-node/vrfClient/config"
	"github.com/pushchain/push-vrf-node/vrfClient/db"
	"github.com/pushchain/push-vrf-node/vrfClient/eventlog"
	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
	"github.com/pushchain/push-vrf-node/vrfClient/responder"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
	"github.com/pushchain/push-vrf-node/vrfClient/vrf"
)

// VrfClient wires the store, the chain client and the three ingestion paths
// into a running oracle.
type VrfClient struct {
	ctx    context.Context
	log    zerolog.Logger
	cfg    *config.VrfConfig
	db     *db.DB
	chain  ChainClient
	prover *vrf.Prover

	store      *txstore.Store
	registry   *prometheus.Registry
	processor  *Processor
	dispatcher *Dispatcher
	ingestors  []*LiveIngestor
	backfiller *Backfiller
	sweeper    *RetrySweeper
	server     *api.Server
}

// NewVrfClient builds every component. It does not start anything.
func NewVrfClient(ctx context.Context, log zerolog.Logger, cfg *config.VrfConfig, database *db.DB, chain ChainClient) (*VrfClient, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if database == nil {
		return nil, errors.New("database is nil")
	}
	if chain == nil {
		return nil, errors.New("chain client is nil")
	}

	prover, err := vrf.NewProver(cfg.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vrf prover")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store := txstore.NewStore(database.Client(), database.CheckoutTimeout(), log)
	generator := responder.NewGenerator(responder.Config{
		Owner:             cfg.Owner,
		NumConfirmedBlock: cfg.NumConfirmedBlock,
	}, chain, prover, eventlog.NewDecoder(cfg.ProgramIDs), log)
	processor := NewProcessor(store, generator, m, log)
	dispatcher := NewDispatcher(cfg.MaxConcurrentTasks, m)

	ingestors := make([]*LiveIngestor, 0, len(cfg.ProgramIDs))
	for _, program := range cfg.ProgramIDs {
		ingestors = append(ingestors, NewLiveIngestor(program, chain, store, processor, dispatcher, m, log))
	}

	backfiller := NewBackfiller(BackfillConfig{
		Programs:  cfg.ProgramIDs,
		Interval:  cfg.BackfillInterval,
		CacheSize: cfg.BackfillCacheSize,
		PageSize:  cfg.BackfillPageSize,
		RPS:       cfg.BackfillRPS,
	}, chain, store, processor, m, log)

	c := &VrfClient{
		ctx:        ctx,
		log:        log,
		cfg:        cfg,
		db:         database,
		chain:      chain,
		prover:     prover,
		store:      store,
		registry:   registry,
		processor:  processor,
		dispatcher: dispatcher,
		ingestors:  ingestors,
		backfiller: backfiller,
		sweeper:    NewRetrySweeper(store, processor, cfg.RetryInterval, m, log),
	}
	if cfg.QueryServerPort > 0 {
		c.server = api.NewServer(log, cfg.QueryServerPort, store, chain, registry)
	}
	return c, nil
}

// Store returns the transaction store.
func (c *VrfClient) Store() *txstore.Store {
	return c.store
}

// Start runs the oracle until the client context ends. It returns an error
// when a first log subscription or the query server cannot be started.
func (c *VrfClient) Start() error {
	c.log.Info().Msg("🚀 Starting vrf client...")
	c.log.Info().
		Str("cluster", c.cfg.Cluster).
		Str("commitment", string(c.cfg.Commitment)).
		Str("database", string(c.db.Dialect())).
		Str("programs", strings.Join(c.cfg.ProgramIDStrings(), ",")).
		Hex("vrf_public_key", c.prover.CompressedPublicKey()).
		Str("owner", c.cfg.Owner.PublicKey().String()).
		Msg("vrf oracle configuration")

	c.recoverOrphans()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	for _, ing := range c.ingestors {
		if err := ing.Start(ctx); err != nil {
			cancel()
			c.shutdown()
			return errors.Wrapf(err, "failed to subscribe to logs of program %s", ing.programID)
		}
	}

	c.backfiller.Start(ctx)
	c.sweeper.Start(ctx)

	if c.server != nil {
		if err := c.server.Start(); err != nil {
			cancel()
			c.shutdown()
			return errors.Wrap(err, "failed to start query server")
		}
	}

	c.log.Info().Msg("✅ Initialization complete. Entering main loop...")
	<-ctx.Done()

	c.log.Info().Msg("🛑 Shutting down vrf client...")
	c.shutdown()
	return nil
}

func (c *VrfClient) recoverOrphans() {
	after := c.cfg.StaleProcessingAfter
	if _, err := c.store.RecoverStaleProcessing(c.ctx, after); err != nil {
		c.log.Error().Err(err).Msg("failed to recover stale processing transactions")
	}
	if _, err := c.store.RecoverUnclaimed(c.ctx, after); err != nil {
		c.log.Error().Err(err).Msg("failed to recover unclaimed transactions")
	}
}

// shutdown waits for every loop and in-flight task, then releases resources.
// The loops must already have been told to stop.
func (c *VrfClient) shutdown() {
	for _, ing := range c.ingestors {
		ing.Wait()
	}
	c.backfiller.Wait()
	c.sweeper.Wait()
	c.dispatcher.Wait()

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("failed to stop query server")
		}
	}
	if err := c.db.Close(); err != nil {
		c.log.Warn().Err(err).Msg("failed to close database")
	}
}
