package svm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultBlockhashPollInterval = 400 * time.Millisecond
	defaultConfirmPollInterval   = 500 * time.Millisecond
	defaultNewBlockhashTimeout   = 10 * time.Second

	// defaultConfirmTimeout outlasts the ~150 slot validity of a blockhash.
	defaultConfirmTimeout = 90 * time.Second
)

// Options configures an RPCClient.
type Options struct {
	RPCURLs             []string
	WSURL               string
	Commitment          rpc.CommitmentType
	NewBlockhashTimeout time.Duration
	ConfirmTimeout      time.Duration
}

// RPCClient is the chain client of the oracle: a pool of JSON-RPC endpoints
// with round-robin failover, plus a websocket endpoint for log subscriptions.
type RPCClient struct {
	clients    []*rpc.Client
	index      uint64
	mu         sync.RWMutex
	wsURL      string
	commitment rpc.CommitmentType

	newBlockhashTimeout   time.Duration
	confirmTimeout        time.Duration
	blockhashPollInterval time.Duration
	confirmPollInterval   time.Duration

	logger zerolog.Logger
}

// NewRPCClient connects to every configured RPC endpoint and keeps the ones
// that report healthy.
func NewRPCClient(ctx context.Context, opts Options, logger zerolog.Logger) (*RPCClient, error) {
	if len(opts.RPCURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	log := logger.With().Str("component", "svm_rpc_client").Logger()
	clients := make([]*rpc.Client, 0, len(opts.RPCURLs))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, url := range opts.RPCURLs {
		client := rpc.New(url)

		health, err := client.GetHealth(ctx)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}
		if health != "ok" {
			log.Warn().Str("url", url).Str("health", health).Msg("node is not healthy, skipping")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("failed to connect to any valid RPC endpoints")
	}

	commitment := opts.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	timeout := opts.NewBlockhashTimeout
	if timeout <= 0 {
		timeout = defaultNewBlockhashTimeout
	}
	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	return &RPCClient{
		clients:               clients,
		wsURL:                 opts.WSURL,
		commitment:            commitment,
		newBlockhashTimeout:   timeout,
		confirmTimeout:        confirmTimeout,
		blockhashPollInterval: defaultBlockhashPollInterval,
		confirmPollInterval:   defaultConfirmPollInterval,
		logger:                log,
	}, nil
}

// executeWithFailover runs fn against the endpoints in round-robin order until
// one succeeds. A JSON-RPC error response is an answer from the node and is
// returned without trying the next endpoint.
func (rc *RPCClient) executeWithFailover(ctx context.Context, operation string, fn func(*rpc.Client) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no RPC clients available for %s", operation)
	}

	var lastErr error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := fn(client)
		if err == nil {
			return nil
		}
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) || errors.Is(err, rpc.ErrNotFound) {
			return err
		}
		lastErr = err

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return errors.Wrapf(lastErr, "operation %s failed after trying %d endpoints", operation, len(clients))
}

// IsHealthy reports whether any endpoint answers getHealth with "ok".
func (rc *RPCClient) IsHealthy(ctx context.Context) bool {
	err := rc.executeWithFailover(ctx, "get_health", func(client *rpc.Client) error {
		health, innerErr := client.GetHealth(ctx)
		if innerErr != nil {
			return innerErr
		}
		if health != "ok" {
			return fmt.Errorf("node health: %s", health)
		}
		return nil
	})
	return err == nil
}

// GetLatestBlockhash returns the latest blockhash at the client commitment.
func (rc *RPCClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var blockhash solana.Hash
	err := rc.executeWithFailover(ctx, "get_latest_blockhash", func(client *rpc.Client) error {
		resp, innerErr := client.GetLatestBlockhash(ctx, rc.commitment)
		if innerErr != nil {
			return innerErr
		}
		if resp == nil || resp.Value == nil {
			return fmt.Errorf("empty blockhash response")
		}
		blockhash = resp.Value.Blockhash
		return nil
	})
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "failed to get latest blockhash")
	}
	return blockhash, nil
}

// GetNewBlockhash polls until the cluster reports a blockhash different from
// previous, or the configured timeout elapses.
func (rc *RPCClient) GetNewBlockhash(ctx context.Context, previous solana.Hash) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, rc.newBlockhashTimeout)
	defer cancel()

	ticker := time.NewTicker(rc.blockhashPollInterval)
	defer ticker.Stop()

	for {
		blockhash, err := rc.GetLatestBlockhash(ctx)
		if err == nil && !blockhash.Equals(previous) {
			return blockhash, nil
		}
		if err != nil {
			rc.logger.Debug().Err(err).Msg("error polling for new blockhash")
		}

		select {
		case <-ctx.Done():
			return solana.Hash{}, fmt.Errorf("unable to get new blockhash after %s: %w", previous, ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsBlockhashValid reports whether blockhash can still be used by a transaction.
func (rc *RPCClient) IsBlockhashValid(ctx context.Context, blockhash solana.Hash) (bool, error) {
	var valid bool
	err := rc.executeWithFailover(ctx, "is_blockhash_valid", func(client *rpc.Client) error {
		resp, innerErr := client.IsBlockhashValid(ctx, blockhash, rpc.CommitmentProcessed)
		if innerErr != nil {
			return innerErr
		}
		valid = resp.Value
		return nil
	})
	return valid, err
}

// SignatureInfo is one entry of an address's transaction history.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	Failed    bool
}

// GetSignaturesBefore returns at most limit finalized signatures mentioning
// address, newest first, starting strictly before the given signature. An
// empty before starts from the newest transaction.
func (rc *RPCClient) GetSignaturesBefore(ctx context.Context, address solana.PublicKey, before string, limit int) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Commitment: rpc.CommitmentFinalized,
	}
	if limit > 0 {
		opts.Limit = &limit
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid cursor signature %s", before)
		}
		opts.Before = sig
	}

	var result []*rpc.TransactionSignature
	err := rc.executeWithFailover(ctx, "get_signatures_for_address", func(client *rpc.Client) error {
		var innerErr error
		result, innerErr = client.GetSignaturesForAddressWithOpts(ctx, address, opts)
		return innerErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get signatures for %s", address)
	}

	out := make([]SignatureInfo, 0, len(result))
	for _, s := range result {
		if s == nil {
			continue
		}
		out = append(out, SignatureInfo{
			Signature: s.Signature.String(),
			Slot:      s.Slot,
			Failed:    s.Err != nil,
		})
	}
	return out, nil
}

// TransactionLogs is the execution outcome of a confirmed transaction.
type TransactionLogs struct {
	Failed bool
	Logs   []string
}

// GetTransactionLogs fetches a finalized transaction and returns its log
// messages. A nil result with no error means the transaction or its metadata
// is not available.
func (rc *RPCClient) GetTransactionLogs(ctx context.Context, signature string) (*TransactionLogs, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid signature %s", signature)
	}

	var tx *rpc.GetTransactionResult
	err = rc.executeWithFailover(ctx, "get_transaction", func(client *rpc.Client) error {
		var innerErr error
		maxVersion := uint64(0)
		tx, innerErr = client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return innerErr
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction %s", signature)
	}
	if tx == nil || tx.Meta == nil {
		return nil, nil
	}
	return &TransactionLogs{
		Failed: tx.Meta.Err != nil,
		Logs:   tx.Meta.LogMessages,
	}, nil
}

// Close drops every endpoint.
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.clients = nil
}
