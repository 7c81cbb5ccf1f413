package svm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"

	vrferrors "github.com/pushchain/push-vrf-node/vrfClient/errors"
)

var blockhashRejections = []string{
	"BlockhashNotFound",
	"AlreadyProcessed",
	"Blockhash not found",
	"already been processed",
}

var confirmationRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

var commitmentRank = map[rpc.CommitmentType]int{
	rpc.CommitmentProcessed: 1,
	rpc.CommitmentConfirmed: 2,
	rpc.CommitmentFinalized: 3,
}

// SendAndConfirm submits a signed transaction and waits until it reaches the
// client commitment. Rejections are classified as
// vrferrors.ErrBlockhashRejected, *vrferrors.SimulationError or
// *vrferrors.RejectedError; any other error is a transport failure.
func (rc *RPCClient) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := rc.executeWithFailover(ctx, "send_transaction", func(client *rpc.Client) error {
		var innerErr error
		sig, innerErr = client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rc.commitment,
		})
		return innerErr
	})
	if err != nil {
		return solana.Signature{}, ClassifySendError(err)
	}

	rc.logger.Debug().Str("signature", sig.String()).Msg("transaction sent, waiting for confirmation")

	if err := rc.waitForConfirmation(ctx, sig, tx.Message.RecentBlockhash); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (rc *RPCClient) waitForConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash) error {
	ticker := time.NewTicker(rc.confirmPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(rc.confirmTimeout)
	defer deadline.Stop()

	want := commitmentRank[rc.commitment]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// Past the blockhash lifetime the transaction can no longer land.
			return fmt.Errorf("%w: transaction %s not confirmed within %s", vrferrors.ErrBlockhashRejected, sig, rc.confirmTimeout)
		case <-ticker.C:
		}

		var statuses *rpc.GetSignatureStatusesResult
		err := rc.executeWithFailover(ctx, "get_signature_statuses", func(client *rpc.Client) error {
			var innerErr error
			statuses, innerErr = client.GetSignatureStatuses(ctx, false, sig)
			return innerErr
		})
		if err != nil {
			rc.logger.Debug().Err(err).Msg("error checking transaction status")
			continue
		}

		if statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return &vrferrors.RejectedError{Reason: fmt.Sprintf("transaction failed: %v", status.Err)}
			}
			if confirmationRank[status.ConfirmationStatus] >= want {
				return nil
			}
			continue
		}

		// Not seen yet: it can only land while its blockhash is valid.
		valid, err := rc.IsBlockhashValid(ctx, blockhash)
		if err != nil {
			rc.logger.Debug().Err(err).Msg("error checking blockhash validity")
			continue
		}
		if !valid {
			return fmt.Errorf("%w: blockhash %s expired before confirmation", vrferrors.ErrBlockhashRejected, blockhash)
		}
	}
}

// ClassifySendError maps a submission error onto the rejection kinds of the
// errors package. Blockhash rejections are recognised before simulation logs
// since the node attaches (empty) logs to those as well.
func ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}

	data, _ := rpcErr.Data.(map[string]interface{})

	reason := rpcErr.Message
	if data != nil {
		if e, ok := data["err"]; ok && e != nil {
			reason = fmt.Sprintf("%s (%v)", rpcErr.Message, e)
		}
	}
	for _, marker := range blockhashRejections {
		if strings.Contains(reason, marker) {
			return fmt.Errorf("%w: %s", vrferrors.ErrBlockhashRejected, rpcErr.Message)
		}
	}

	if data != nil {
		if raw, ok := data["logs"].([]interface{}); ok {
			logs := make([]string, 0, len(raw))
			for _, line := range raw {
				if s, ok := line.(string); ok {
					logs = append(logs, s)
				}
			}
			return &vrferrors.SimulationError{Message: rpcErr.Message, Logs: logs}
		}
	}

	return &vrferrors.RejectedError{Reason: reason, Cause: rpcErr}
}
