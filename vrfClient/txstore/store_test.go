package txstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/push-vrf-node/vrfClient/store"
)

const (
	testProgram = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	testTx      = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

// setupTestStore creates a store over a migrated in-memory SQLite database.
func setupTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&store.VrfTransaction{}))
	return NewStore(db, time.Second, zerolog.Nop()), db
}

func mustStatus(t *testing.T, s *Store, programID, tx string) Status {
	t.Helper()
	rec, err := s.Get(context.Background(), programID, tx)
	require.NoError(t, err)
	return rec.Status
}

func TestInsertNew(t *testing.T) {
	ctx := context.Background()

	t.Run("second insert of the same pair reports existing", func(t *testing.T) {
		s, _ := setupTestStore(t)

		inserted, err := s.InsertNew(ctx, testProgram, testTx, "Program log: hi")
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = s.InsertNew(ctx, testProgram, testTx, "Program log: hi")
		require.NoError(t, err)
		assert.False(t, inserted)

		rec, err := s.Get(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.Equal(t, StatusNew, rec.Status)
		assert.Equal(t, "Program log: hi", rec.LogMessages)
		assert.Nil(t, rec.Errors)
		assert.Nil(t, rec.ResponseTransaction)
		assert.False(t, rec.TimeCreate.IsZero())
	})

	t.Run("same signature under another program is a distinct record", func(t *testing.T) {
		s, _ := setupTestStore(t)

		inserted, err := s.InsertNew(ctx, testProgram, testTx, "")
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = s.InsertNew(ctx, "OtherProgram11111111111111111111111111111111", testTx, "")
		require.NoError(t, err)
		assert.True(t, inserted)
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown transaction cannot be claimed", func(t *testing.T) {
		s, _ := setupTestStore(t)
		claimed, err := s.Claim(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("only one concurrent claim wins", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, err := s.InsertNew(ctx, testProgram, testTx, "")
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := s.Claim(ctx, testProgram, testTx)
				assert.NoError(t, err)
				if claimed {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, StatusProcessing, mustStatus(t, s, testProgram, testTx))
	})

	t.Run("terminal states are never reclaimed", func(t *testing.T) {
		s, _ := setupTestStore(t)

		_, _ = s.InsertNew(ctx, testProgram, "processed", "")
		claimed, _ := s.Claim(ctx, testProgram, "processed")
		require.True(t, claimed)
		require.NoError(t, s.CompleteNoop(ctx, testProgram, "processed"))

		_, _ = s.InsertNew(ctx, testProgram, "fatal", "")
		claimed, _ = s.Claim(ctx, testProgram, "fatal")
		require.True(t, claimed)
		require.NoError(t, s.Fail(ctx, testProgram, "fatal", true, "decode error"))

		for _, tx := range []string{"processed", "fatal"} {
			claimed, err := s.Claim(ctx, testProgram, tx)
			require.NoError(t, err)
			assert.False(t, claimed, tx)
		}
	})

	t.Run("retryable error can be reclaimed by a single winner", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		claimed, _ := s.Claim(ctx, testProgram, testTx)
		require.True(t, claimed)
		require.NoError(t, s.Fail(ctx, testProgram, testTx, false, "blockhash exhausted"))

		first, err := s.Claim(ctx, testProgram, testTx)
		require.NoError(t, err)
		second, err := s.Claim(ctx, testProgram, testTx)
		require.NoError(t, err)

		assert.True(t, first)
		assert.False(t, second)
	})
}

func TestCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("complete with response stores payload", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		_, _ = s.Claim(ctx, testProgram, testTx)

		require.NoError(t, s.CompleteWithResponse(ctx, testProgram, testTx, "respSig", []byte{1, 2}, []byte{3, 4}))

		rec, err := s.Get(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, rec.Status)
		require.NotNil(t, rec.ResponseTransaction)
		assert.Equal(t, "respSig", *rec.ResponseTransaction)
		assert.Equal(t, []byte{1, 2}, rec.VrfSeeds)
		assert.Equal(t, []byte{3, 4}, rec.VrfProof)
		assert.Nil(t, rec.Errors)
	})

	t.Run("complete noop leaves payload empty", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		_, _ = s.Claim(ctx, testProgram, testTx)

		require.NoError(t, s.CompleteNoop(ctx, testProgram, testTx))

		rec, err := s.Get(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, rec.Status)
		assert.Nil(t, rec.ResponseTransaction)
		assert.Empty(t, rec.VrfSeeds)
		assert.Empty(t, rec.VrfProof)
	})

	t.Run("fail stores classification and message", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		_, _ = s.Claim(ctx, testProgram, testTx)

		require.NoError(t, s.Fail(ctx, testProgram, testTx, false, "rpc unavailable"))

		rec, err := s.Get(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.Equal(t, StatusRetryableError, rec.Status)
		require.NotNil(t, rec.Errors)
		assert.Equal(t, "rpc unavailable", *rec.Errors)
	})

	t.Run("successful retry clears previous error text", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		_, _ = s.Claim(ctx, testProgram, testTx)
		require.NoError(t, s.Fail(ctx, testProgram, testTx, false, "rpc unavailable"))
		_, _ = s.Claim(ctx, testProgram, testTx)
		require.NoError(t, s.CompleteNoop(ctx, testProgram, testTx))

		rec, err := s.Get(ctx, testProgram, testTx)
		require.NoError(t, err)
		assert.Nil(t, rec.Errors)
	})

	t.Run("updates outside Processing are anomalies", func(t *testing.T) {
		s, _ := setupTestStore(t)
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")

		err := s.CompleteNoop(ctx, testProgram, testTx)
		require.Error(t, err)
		assert.True(t, IsAnomaly(err))

		err = s.Fail(ctx, testProgram, testTx, true, "x")
		assert.True(t, IsAnomaly(err))

		err = s.CompleteWithResponse(ctx, testProgram, "missing", "r", nil, nil)
		assert.True(t, IsAnomaly(err))

		assert.Equal(t, StatusNew, mustStatus(t, s, testProgram, testTx))
	})
}

func TestListRetryable(t *testing.T) {
	ctx := context.Background()

	failAt := func(t *testing.T, s *Store, tx string, at time.Time) {
		t.Helper()
		s.now = func() time.Time { return at }
		_, err := s.InsertNew(ctx, testProgram, tx, "line1\nline2")
		require.NoError(t, err)
		claimed, err := s.Claim(ctx, testProgram, tx)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, s.Fail(ctx, testProgram, tx, false, "retry me"))
	}

	t.Run("only rows older than the window are returned", func(t *testing.T) {
		s, _ := setupTestStore(t)
		now := time.Now().UTC()

		failAt(t, s, "old", now.Add(-time.Hour))
		failAt(t, s, "fresh", now.Add(-time.Second))
		s.now = func() time.Time { return now }

		rows, err := s.ListRetryable(ctx, time.Minute)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "old", rows[0].Transaction)
		assert.Equal(t, testProgram, rows[0].ProgramID)
		assert.Equal(t, []string{"line1", "line2"}, rows[0].Logs())
	})

	t.Run("fatal rows are never listed", func(t *testing.T) {
		s, _ := setupTestStore(t)
		now := time.Now().UTC()
		s.now = func() time.Time { return now.Add(-time.Hour) }
		_, _ = s.InsertNew(ctx, testProgram, testTx, "")
		_, _ = s.Claim(ctx, testProgram, testTx)
		require.NoError(t, s.Fail(ctx, testProgram, testTx, true, "fatal"))
		s.now = func() time.Time { return now }

		rows, err := s.ListRetryable(ctx, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("batch is capped", func(t *testing.T) {
		s, _ := setupTestStore(t)
		now := time.Now().UTC()
		for i := 0; i < RetryBatchLimit+7; i++ {
			failAt(t, s, fmt.Sprintf("tx-%02d", i), now.Add(-time.Hour).Add(time.Duration(i)*time.Second))
		}
		s.now = func() time.Time { return now }

		rows, err := s.ListRetryable(ctx, time.Minute)
		require.NoError(t, err)
		assert.Len(t, rows, RetryBatchLimit)
		assert.Equal(t, "tx-00", rows[0].Transaction, "oldest rows come first")
	})
}

func TestListRecentSignatures(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		_, err := s.InsertNew(ctx, testProgram, fmt.Sprintf("sig-%d", i), "")
		require.NoError(t, err)
	}
	_, err := s.InsertNew(ctx, "OtherProgram11111111111111111111111111111111", "foreign", "")
	require.NoError(t, err)

	sigs, err := s.ListRecentSignatures(ctx, testProgram, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-4", "sig-3", "sig-2"}, sigs)

	all, err := s.ListRecentSignatures(ctx, testProgram, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.NotContains(t, all, "foreign")
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	_, _ = s.InsertNew(ctx, testProgram, "a", "")
	_, _ = s.InsertNew(ctx, testProgram, "b", "")
	_, _ = s.Claim(ctx, testProgram, "b")
	require.NoError(t, s.CompleteNoop(ctx, testProgram, "b"))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[StatusNew])
	assert.Equal(t, int64(1), counts[StatusProcessed])
	assert.Equal(t, int64(0), counts[StatusFatalError])
	assert.Len(t, counts, len(Statuses))
}

func TestRecoverStaleProcessing(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)
	now := time.Now().UTC()

	s.now = func() time.Time { return now.Add(-time.Hour) }
	_, _ = s.InsertNew(ctx, testProgram, "stale", "")
	_, _ = s.Claim(ctx, testProgram, "stale")

	s.now = func() time.Time { return now }
	_, _ = s.InsertNew(ctx, testProgram, "active", "")
	_, _ = s.Claim(ctx, testProgram, "active")

	recovered, err := s.RecoverStaleProcessing(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	assert.Equal(t, StatusRetryableError, mustStatus(t, s, testProgram, "stale"))
	assert.Equal(t, StatusProcessing, mustStatus(t, s, testProgram, "active"))
}

func TestLogEncoding(t *testing.T) {
	logs := []string{"Program X invoke [1]", "Program data: AAAA", "Program X success"}
	assert.Equal(t, logs, SplitLogs(JoinLogs(logs)))
	assert.Nil(t, SplitLogs(""))
}

func TestRecoverUnclaimed(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)
	now := time.Now().UTC()

	s.now = func() time.Time { return now.Add(-time.Hour) }
	_, _ = s.InsertNew(ctx, testProgram, "orphan", "")

	s.now = func() time.Time { return now }
	_, _ = s.InsertNew(ctx, testProgram, "recent", "")

	recovered, err := s.RecoverUnclaimed(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)
	assert.Equal(t, StatusRetryableError, mustStatus(t, s, testProgram, "orphan"))
	assert.Equal(t, StatusNew, mustStatus(t, s, testProgram, "recent"))
}
