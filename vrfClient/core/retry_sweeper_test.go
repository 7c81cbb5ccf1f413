package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

func failWith(t *testing.T, s *txstore.Store, transaction string, fatal bool) {
	t.Helper()
	ctx := context.Background()
	claimed, err := s.Claim(ctx, testProgram.String(), transaction)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.Fail(ctx, testProgram.String(), transaction, fatal, "Failed to send transaction"))
}

func TestRetrySweeperRetriesRetryableOnly(t *testing.T) {
	s := newTestStore(t)
	insertNew(t, s, "retry-me", "Program log: a", "Program log: b")
	insertNew(t, s, "fatal")
	insertNew(t, s, "fresh")
	failWith(t, s, "retry-me", false)
	failWith(t, s, "fatal", true)

	resp := &fakeResponder{}
	interval := 5 * time.Millisecond
	r := NewRetrySweeper(s, NewProcessor(s, resp, nil, zerolog.Nop()), interval, nil, zerolog.Nop())

	time.Sleep(4 * interval)
	assert.Equal(t, 1, r.Sweep(context.Background()))

	assert.Equal(t, []string{"retry-me"}, resp.Calls())
	assert.Equal(t, []string{"Program log: a", "Program log: b"}, resp.LogsOf("retry-me"))
	requireStatus(t, s, "retry-me", txstore.StatusProcessed)
	requireStatus(t, s, "fatal", txstore.StatusFatalError)
	requireStatus(t, s, "fresh", txstore.StatusNew)

	assert.Equal(t, 0, r.Sweep(context.Background()))
}

func TestRetrySweeperWaitsForQuietPeriod(t *testing.T) {
	s := newTestStore(t)
	insertNew(t, s, "just-failed")
	failWith(t, s, "just-failed", false)

	resp := &fakeResponder{}
	r := NewRetrySweeper(s, NewProcessor(s, resp, nil, zerolog.Nop()), time.Hour, nil, zerolog.Nop())

	assert.Equal(t, 0, r.Sweep(context.Background()))
	assert.Empty(t, resp.Calls())
	requireStatus(t, s, "just-failed", txstore.StatusRetryableError)
}

func TestRetrySweeperStartStop(t *testing.T) {
	s := newTestStore(t)
	insertNew(t, s, "retry-me")
	failWith(t, s, "retry-me", false)

	resp := &fakeResponder{}
	r := NewRetrySweeper(s, NewProcessor(s, resp, nil, zerolog.Nop()), 5*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.Eventually(t, func() bool { return len(resp.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()

	requireStatus(t, s, "retry-me", txstore.StatusProcessed)
}
