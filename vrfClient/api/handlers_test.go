package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
)

const (
	testProgram = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	testTx      = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

type fakeReader struct {
	records  map[string]*txstore.Record
	counts   map[txstore.Status]int64
	getErr   error
	countErr error
}

func (f *fakeReader) Get(_ context.Context, programID, transaction string) (*txstore.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[programID+"/"+transaction]
	if !ok {
		return nil, errors.Wrapf(gorm.ErrRecordNotFound, "failed to load transaction %s", transaction)
	}
	return r, nil
}

func (f *fakeReader) CountByStatus(context.Context) (map[txstore.Status]int64, error) {
	return f.counts, f.countErr
}

type fakeHealth bool

func (f fakeHealth) IsHealthy(context.Context) bool {
	return bool(f)
}

func newTestServer(t *testing.T, reader TransactionReader, gatherer prometheus.Gatherer) *Server {
	t.Helper()
	return NewServer(zerolog.New(zerolog.NewTestWriter(t)), 0, reader, nil, gatherer)
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t, &fakeReader{}, nil)

	w := serve(server, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	t.Run("healthy chain", func(t *testing.T) {
		server := NewServer(zerolog.Nop(), 0, &fakeReader{}, fakeHealth(true), nil)
		w := serve(server, "/health")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unreachable chain", func(t *testing.T) {
		server := NewServer(zerolog.Nop(), 0, &fakeReader{}, fakeHealth(false), nil)
		w := serve(server, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "UNHEALTHY", w.Body.String())
	})
}

func TestHandleTransaction(t *testing.T) {
	response := "3Xq1response"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reader := &fakeReader{
		records: map[string]*txstore.Record{
			testProgram + "/" + testTx: {
				ProgramID:           testProgram,
				Transaction:         testTx,
				Status:              txstore.StatusProcessed,
				VrfSeeds:            []byte{0xab, 0xcd},
				VrfProof:            []byte{0x01},
				ResponseTransaction: &response,
				TimeCreate:          created,
				TimeUpdate:          created,
			},
		},
	}
	server := newTestServer(t, reader, nil)

	t.Run("known transaction", func(t *testing.T) {
		w := serve(server, "/api/v1/transactions/"+testProgram+"/"+testTx)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var body struct {
			Data TransactionView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, testTx, body.Data.Transaction)
		assert.Equal(t, "processed", body.Data.Status)
		assert.Equal(t, "abcd", body.Data.VrfSeeds)
		assert.Equal(t, "01", body.Data.VrfProof)
		require.NotNil(t, body.Data.ResponseTransaction)
		assert.Equal(t, response, *body.Data.ResponseTransaction)
		assert.True(t, created.Equal(body.Data.TimeCreate))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		w := serve(server, "/api/v1/transactions/"+testProgram+"/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "missing")
	})

	t.Run("store failure", func(t *testing.T) {
		failing := newTestServer(t, &fakeReader{getErr: errors.New("database is locked")}, nil)
		w := serve(failing, "/api/v1/transactions/"+testProgram+"/"+testTx)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("post is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/"+testProgram+"/"+testTx, nil)
		w := httptest.NewRecorder()
		server.server.Handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		req = httptest.NewRequest(http.MethodDelete, "/api/v1/stats", nil)
		w = httptest.NewRecorder()
		server.server.Handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestHandleStats(t *testing.T) {
	reader := &fakeReader{counts: map[txstore.Status]int64{
		txstore.StatusNew:            1,
		txstore.StatusProcessing:     0,
		txstore.StatusProcessed:      7,
		txstore.StatusFatalError:     2,
		txstore.StatusRetryableError: 3,
	}}
	server := newTestServer(t, reader, nil)

	w := serve(server, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]int64{
		"new":             1,
		"processing":      0,
		"processed":       7,
		"fatal_error":     2,
		"retryable_error": 3,
	}, body.Data)

	failing := newTestServer(t, &fakeReader{countErr: errors.New("boom")}, nil)
	assert.Equal(t, http.StatusInternalServerError, serve(failing, "/api/v1/stats").Code)
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pvrf_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	w := serve(newTestServer(t, &fakeReader{}, reg), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pvrf_test_total 3")

	noMetrics := newTestServer(t, &fakeReader{}, nil)
	assert.Equal(t, http.StatusNotFound, serve(noMetrics, "/metrics").Code)
}
