package core

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-vrf-node/vrfClient/chains/svm"
	"github.com/pushchain/push-vrf-node/vrfClient/db"
	"github.com/pushchain/push-vrf-node/vrfClient/responder"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

var testProgram = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

func newTestStore(t *testing.T) *txstore.Store {
	t.Helper()
	database, err := db.OpenInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return txstore.NewStore(database.Client(), time.Second, zerolog.Nop())
}

func requireStatus(t *testing.T, s *txstore.Store, transaction string, want txstore.Status) *txstore.Record {
	t.Helper()
	r, err := s.Get(context.Background(), testProgram.String(), transaction)
	require.NoError(t, err)
	require.Equal(t, want, r.Status, "transaction %s", transaction)
	return r
}

// fakeResponder records every call and answers with fn, or a noop when fn
// is nil.
type fakeResponder struct {
	mu    sync.Mutex
	calls []string
	logs  map[string][]string
	fn    func(ctx context.Context, transaction string) (*responder.Response, error)
}

func (f *fakeResponder) Respond(ctx context.Context, transaction string, logs []string) (*responder.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transaction)
	if f.logs == nil {
		f.logs = make(map[string][]string)
	}
	f.logs[transaction] = logs
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, transaction)
}

func (f *fakeResponder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeResponder) LogsOf(transaction string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[transaction]
}

type fakeStream struct {
	ch     chan *svm.LogNotification
	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan *svm.LogNotification, 16)}
}

func (s *fakeStream) Recv(ctx context.Context) (*svm.LogNotification, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return n, nil
	}
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type subscribeResult struct {
	stream *fakeStream
	err    error
}

// fakeSubscriber hands out queued results, then idle streams.
type fakeSubscriber struct {
	mu      sync.Mutex
	results []subscribeResult
	calls   int
}

func (f *fakeSubscriber) SubscribeLogs(_ context.Context, _ solana.PublicKey) (svm.LogStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return newFakeStream(), nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.stream, nil
}

func (f *fakeSubscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	mu         sync.Mutex
	signatures []svm.SignatureInfo
	txs        map[string]*svm.TransactionLogs
	befores    []string
	sigErrs    []error
	fetched    []string
}

func (f *fakeHistory) GetSignaturesBefore(_ context.Context, _ solana.PublicKey, before string, limit int) ([]svm.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	if len(f.sigErrs) > 0 {
		err := f.sigErrs[0]
		f.sigErrs = f.sigErrs[1:]
		return nil, err
	}
	out := f.signatures
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistory) GetTransactionLogs(_ context.Context, signature string) (*svm.TransactionLogs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, signature)
	return f.txs[signature], nil
}

func (f *fakeHistory) Befores() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.befores...)
}
