// Package responder turns the logs of one request transaction into a signed,
// confirmed VRF response transaction.
package responder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-vrf-node/vrfClient/constant"
	vrferrors "github.com/pushchain/push-vrf-node/vrfClient/errors"
	"github.com/pushchain/push-vrf-node/vrfClient/eventlog"
)

// Chain is the part of the chain client used to build and submit responses.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetNewBlockhash(ctx context.Context, previous solana.Hash) (solana.Hash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Prover computes a VRF proof and its hash output.
type Prover interface {
	Prove(seed []byte) (proof, hash []byte, err error)
}

// Decoder extracts events from transaction logs.
type Decoder interface {
	Decode(logs []string) ([]eventlog.Event, []error)
}

// Config holds the generator parameters.
type Config struct {
	Owner             solana.PrivateKey
	NumConfirmedBlock int
}

// Generator answers RequestVrf events.
type Generator struct {
	chain         Chain
	prover        Prover
	decoder       Decoder
	owner         solana.PrivateKey
	numBlocks     int
	discriminator [eventlog.DiscriminatorSize]byte
	logger        zerolog.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(cfg Config, chain Chain, prover Prover, decoder Decoder, logger zerolog.Logger) *Generator {
	numBlocks := cfg.NumConfirmedBlock
	if numBlocks < 1 {
		numBlocks = 1
	}
	return &Generator{
		chain:         chain,
		prover:        prover,
		decoder:       decoder,
		owner:         cfg.Owner,
		numBlocks:     numBlocks,
		discriminator: eventlog.EventDiscriminator(RequestVrfEvent),
		logger:        logger.With().Str("component", "vrf_responder").Logger(),
	}
}

// Respond processes the logs of request transaction. It returns nil when the
// logs carry no RequestVrf event. Returned errors are classified with the
// errors package; unclassified errors are retryable.
func (g *Generator) Respond(ctx context.Context, transaction string, logs []string) (*Response, error) {
	log := g.logger.With().Str("transaction", transaction).Logger()

	events, decodeErrs := g.decoder.Decode(logs)
	if len(decodeErrs) > 0 {
		return nil, vrferrors.Fatal(errors.New(eventlog.JoinErrors(decodeErrs)))
	}

	var event *eventlog.Event
	for i := range events {
		if bytes.Equal(events[i].Discriminator(), g.discriminator[:]) {
			event = &events[i]
			break
		}
	}
	if event == nil {
		return nil, nil
	}

	req, err := DecodeRequestVrf(event.Body())
	if err != nil {
		return nil, vrferrors.FatalWithContext(err, "Deserialize RequestVrf Event")
	}
	if !bytes.HasPrefix(req.IxData, make([]byte, RandomByteLen)) {
		log.Warn().Msg("random byte placeholder does not match, data loss may occur")
	}

	log.Info().Int("blocks", g.numBlocks).Msg("gathering blockhashes")
	seeds, err := g.gatherSeeds(ctx, log)
	if err != nil {
		return nil, err
	}

	proof, hash, err := g.prover.Prove(seeds)
	if err != nil {
		return nil, vrferrors.Fatal(err)
	}
	if len(hash) < RandomByteLen {
		return nil, vrferrors.Fatalf("vrf hash too short: %d bytes", len(hash))
	}
	var result VrfResult
	copy(result.Random[:], hash[:RandomByteLen])
	log.Info().Hex("random", result.Random[:]).Msg("random value computed")

	rawSig, err := base58.Decode(transaction)
	if err != nil || len(rawSig) != SignatureByteLen {
		return nil, vrferrors.Fatalf("invalid request transaction signature %q", transaction)
	}
	copy(result.RequestTransaction[:], rawSig)

	data, err := g.instructionData(req, &result)
	if err != nil {
		return nil, err
	}

	accounts := make(solana.AccountMetaSlice, 0, len(req.Accounts)+1)
	accounts = append(accounts, solana.NewAccountMeta(g.owner.PublicKey(), false, true))
	for _, acc := range req.Accounts {
		accounts = append(accounts, solana.NewAccountMeta(acc.Pubkey, acc.IsWritable, false))
	}
	instruction := solana.NewInstruction(event.ProgramID, accounts, data)

	blockhash, err := g.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash,
		solana.TransactionPayer(g.owner.PublicKey()),
	)
	if err != nil {
		return nil, vrferrors.FatalWithContext(err, "failed to create transaction")
	}
	if err := g.sign(tx); err != nil {
		return nil, vrferrors.Fatal(err)
	}

	for attempt := 1; attempt <= constant.SubmitAttempts; attempt++ {
		log.Info().Int("attempt", attempt).Msg("sending response transaction")

		sig, err := g.chain.SendAndConfirm(ctx, tx)
		if err == nil {
			return &Response{
				ResponseTransaction: sig.String(),
				Seeds:               seeds,
				Proof:               proof,
				Random:              result.Random[:],
			}, nil
		}

		var sim *vrferrors.SimulationError
		switch {
		case vrferrors.Is(err, vrferrors.ErrBlockhashRejected):
			log.Warn().Err(err).Msg("blockhash rejected, refreshing")
			next, err := g.chain.GetNewBlockhash(ctx, tx.Message.RecentBlockhash)
			if err != nil {
				return nil, err
			}
			tx.Message.RecentBlockhash = next
			if err := g.sign(tx); err != nil {
				return nil, vrferrors.Fatal(err)
			}
		case vrferrors.As(err, &sim):
			return nil, vrferrors.FatalWithContext(err, sim.LogText())
		case vrferrors.IsCanceled(err):
			return nil, err
		default:
			return nil, vrferrors.Fatal(err)
		}
	}

	return nil, vrferrors.Retryablef("Failed to send transaction")
}

// gatherSeeds concatenates the latest blockhash and the next N-1 blockhashes,
// each strictly newer than the previous one.
func (g *Generator) gatherSeeds(ctx context.Context, log zerolog.Logger) ([]byte, error) {
	seeds := make([]byte, 0, g.numBlocks*len(solana.Hash{}))

	blockhash, err := g.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	seeds = append(seeds, blockhash[:]...)
	log.Debug().Msgf("gathered blockhash 1/%d", g.numBlocks)

	for i := 1; i < g.numBlocks; i++ {
		next, err := g.chain.GetNewBlockhash(ctx, blockhash)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, next[:]...)
		blockhash = next
		log.Debug().Msgf("gathered blockhash %d/%d", i+1, g.numBlocks)
	}
	return seeds, nil
}

// instructionData builds sighash || borsh(result) || IxData[len(result):].
func (g *Generator) instructionData(req *RequestVrf, result *VrfResult) ([]byte, error) {
	encoded, err := result.Encode()
	if err != nil {
		return nil, vrferrors.Fatal(err)
	}
	if len(req.IxData) < len(encoded) {
		return nil, vrferrors.Fatalf("VrfResult incompatible layout: ix_data.len()=%d, vrf_result.len()=%d",
			len(req.IxData), len(encoded))
	}

	data := make([]byte, 0, len(req.IxSighash)+len(req.IxData))
	data = append(data, req.IxSighash[:]...)
	data = append(data, encoded...)
	data = append(data, req.IxData[len(encoded):]...)
	return data, nil
}

// sign replaces the transaction signatures with a fresh owner signature.
func (g *Generator) sign(tx *solana.Transaction) error {
	tx.Signatures = nil
	owner := g.owner
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner.PublicKey()) {
			return &owner
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
