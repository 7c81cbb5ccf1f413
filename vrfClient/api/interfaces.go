package api

import (
	"context"

	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// HealthChecker reports whether the chain endpoints are reachable
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// TransactionReader defines the store queries needed by the API server
type TransactionReader interface {
	Get(ctx context.Context, programID, transaction string) (*txstore.Record, error)
	CountByStatus(ctx context.Context) (map[txstore.Status]int64, error)
}
