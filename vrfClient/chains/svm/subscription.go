package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/pkg/errors"
)

// LogNotification is one transaction reported by a log subscription.
type LogNotification struct {
	Signature string
	Slot      uint64
	Err       interface{}
	Logs      []string
}

// Failed reports whether the transaction failed on-chain.
func (n *LogNotification) Failed() bool {
	return n.Err != nil
}

// LogStream is an open log subscription.
type LogStream interface {
	// Recv blocks until the next notification. Any error ends the stream.
	Recv(ctx context.Context) (*LogNotification, error)
	Close()
}

// LogSubscription streams log notifications for transactions mentioning one
// program. Each subscription owns its websocket connection.
type LogSubscription struct {
	conn *ws.Client
	sub  *ws.LogSubscription
}

// SubscribeLogs opens a websocket connection and subscribes to logs of
// transactions mentioning program at the client commitment. An error means
// the subscription handshake failed.
func (rc *RPCClient) SubscribeLogs(ctx context.Context, program solana.PublicKey) (LogStream, error) {
	if rc.wsURL == "" {
		return nil, fmt.Errorf("no websocket URL configured")
	}

	conn, err := ws.Connect(ctx, rc.wsURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", rc.wsURL)
	}

	sub, err := conn.LogsSubscribeMentions(program, rc.commitment)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to logs of %s", program)
	}

	rc.logger.Debug().Str("program_id", program.String()).Msg("log subscription opened")
	return &LogSubscription{conn: conn, sub: sub}, nil
}

// Recv blocks until the next notification. Any error ends the stream.
func (s *LogSubscription) Recv(ctx context.Context) (*LogNotification, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("log subscription closed")
	}
	return &LogNotification{
		Signature: res.Value.Signature.String(),
		Slot:      res.Context.Slot,
		Err:       res.Value.Err,
		Logs:      res.Value.Logs,
	}, nil
}

// Close unsubscribes and closes the connection.
func (s *LogSubscription) Close() {
	s.sub.Unsubscribe()
	s.conn.Close()
}
