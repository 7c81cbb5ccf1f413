package api

import (
	"encoding/hex"
	"time"

	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransactionView is the JSON form of a stored request transaction.
type TransactionView struct {
	ProgramID           string    `json:"program_id"`
	Transaction         string    `json:"transaction"`
	Status              string    `json:"status"`
	ResponseTransaction *string   `json:"response_transaction,omitempty"`
	VrfSeeds            string    `json:"vrf_seeds,omitempty"`
	VrfProof            string    `json:"vrf_proof,omitempty"`
	Errors              *string   `json:"errors,omitempty"`
	TimeCreate          time.Time `json:"time_create"`
	TimeUpdate          time.Time `json:"time_update"`
}

func newTransactionView(r *txstore.Record) TransactionView {
	return TransactionView{
		ProgramID:           r.ProgramID,
		Transaction:         r.Transaction,
		Status:              r.Status.String(),
		ResponseTransaction: r.ResponseTransaction,
		VrfSeeds:            hex.EncodeToString(r.VrfSeeds),
		VrfProof:            hex.EncodeToString(r.VrfProof),
		Errors:              r.Errors,
		TimeCreate:          r.TimeCreate,
		TimeUpdate:          r.TimeUpdate,
	}
}
