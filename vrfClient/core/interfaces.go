package core

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/pushchain/push-vrf-node/vrfClient/chains/svm"
	"github.com/pushchain/push-vrf-node/vrfClient/responder"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// TransactionStore is the persisted state machine of request transactions.
type TransactionStore interface {
	InsertNew(ctx context.Context, programID, transaction, logMessages string) (bool, error)
	Claim(ctx context.Context, programID, transaction string) (bool, error)
	CompleteWithResponse(ctx context.Context, programID, transaction, responseTransaction string, seeds, proof []byte) error
	CompleteNoop(ctx context.Context, programID, transaction string) error
	Fail(ctx context.Context, programID, transaction string, fatal bool, message string) error
	ListRetryable(ctx context.Context, olderThan time.Duration) ([]txstore.RetryableTransaction, error)
	ListRecentSignatures(ctx context.Context, programID string, limit int) ([]string, error)
}

// Responder produces the VRF response for one request transaction.
type Responder interface {
	Respond(ctx context.Context, transaction string, logs []string) (*responder.Response, error)
}

// LogSubscriber opens log subscriptions for a program.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, program solana.PublicKey) (svm.LogStream, error)
}

// HistorySource reads finalized transaction history of a program.
type HistorySource interface {
	GetSignaturesBefore(ctx context.Context, address solana.PublicKey, before string, limit int) ([]svm.SignatureInfo, error)
	GetTransactionLogs(ctx context.Context, signature string) (*svm.TransactionLogs, error)
}

// ChainClient is everything the node needs from the chain.
type ChainClient interface {
	IsHealthy(ctx context.Context) bool
	responder.Chain
	LogSubscriber
	HistorySource
}
