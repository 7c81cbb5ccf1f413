package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("UNHEALTHY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleTransaction handles GET /api/v1/transactions/{program_id}/{signature}
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	programID, signature := vars["program_id"], vars["signature"]

	record, err := s.reader.Get(r.Context(), programID, signature)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error: fmt.Sprintf("transaction %s not found for program %s", signature, programID),
			})
			return
		}
		s.logger.Error().Err(err).Str("transaction", signature).Msg("failed to load transaction")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load transaction"})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: newTransactionView(record)})
}

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reader.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count transactions")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to count transactions"})
		return
	}

	byName := make(map[string]int64, len(counts))
	for status, n := range counts {
		byName[status.String()] = n
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: byName})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
