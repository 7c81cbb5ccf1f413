// Package txstore is the durable state machine behind the oracle. Every
// concurrency decision (who processes a transaction, whether it is finished)
// is a single-row conditional update here; there are no in-process locks.
package txstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pushchain/push-vrf-node/vrfClient/store"
)

const (
	// RetryBatchLimit bounds the rows returned by ListRetryable.
	RetryBatchLimit = 20

	defaultOpTimeout = 5 * time.Second
)

// ErrNoRowAffected marks a conditional update that matched nothing: another
// path already claimed or finished the transaction.
var ErrNoRowAffected = errors.New("no row affected")

// IsAnomaly reports whether err is a lost-race conditional update rather than
// a storage failure.
func IsAnomaly(err error) bool {
	return errors.Is(err, ErrNoRowAffected)
}

// Record is the domain view of a persisted VRF transaction.
type Record struct {
	ProgramID           string
	Transaction         string
	Status              Status
	LogMessages         string
	VrfSeeds            []byte
	VrfProof            []byte
	ResponseTransaction *string
	Errors              *string
	TimeCreate          time.Time
	TimeUpdate          time.Time
}

// Logs splits the stored log text back into lines.
func (r *Record) Logs() []string {
	return SplitLogs(r.LogMessages)
}

// RetryableTransaction is the subset of a record needed to re-run it.
type RetryableTransaction struct {
	ProgramID   string
	Transaction string
	LogMessages string
}

// Logs splits the stored log text back into lines.
func (r RetryableTransaction) Logs() []string {
	return SplitLogs(r.LogMessages)
}

// JoinLogs is the storage encoding of a transaction's log lines.
func JoinLogs(logs []string) string {
	return strings.Join(logs, "\n")
}

// SplitLogs reverses JoinLogs.
func SplitLogs(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Store provides database access for VRF transaction records.
type Store struct {
	db        *gorm.DB
	opTimeout time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStore creates a store. opTimeout bounds each operation, including the
// wait for a pooled connection; zero selects a default.
func NewStore(db *gorm.DB, opTimeout time.Duration, logger zerolog.Logger) *Store {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Store{
		db:        db,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "tx_store").Logger(),
	}
}

func (s *Store) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	return s.db.WithContext(ctx), cancel
}

func identity(programID, transaction string) map[string]any {
	return map[string]any{
		"program_id":  programID,
		"transaction": transaction,
	}
}

// InsertNew records a newly observed transaction in status New. It returns
// false without error when the (program, transaction) pair already exists.
func (s *Store) InsertNew(ctx context.Context, programID, transaction, logMessages string) (bool, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	now := s.now()
	row := store.VrfTransaction{
		ProgramID:   programID,
		Transaction: transaction,
		Status:      encodeStatus(StatusNew),
		LogMessages: logMessages,
		TimeCreate:  now,
		TimeUpdate:  now,
	}

	result := db.Create(&row)
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return false, nil
		}
		return false, errors.Wrapf(result.Error, "failed to insert transaction %s", transaction)
	}
	if result.RowsAffected != 1 {
		return false, errors.Wrapf(ErrNoRowAffected, "insert transaction %s", transaction)
	}
	return true, nil
}

// Claim moves a New or RetryableError record to Processing. Exactly one of
// any number of concurrent callers gets true.
func (s *Store) Claim(ctx context.Context, programID, transaction string) (bool, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	result := db.Model(&store.VrfTransaction{}).
		Where(identity(programID, transaction)).
		Where("status IN ?", claimable).
		Updates(map[string]any{
			"status":      encodeStatus(StatusProcessing),
			"time_update": s.now(),
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "failed to claim transaction %s", transaction)
	}
	return result.RowsAffected == 1, nil
}

// CompleteWithResponse finishes a Processing record with the submitted
// response and the VRF material that produced it.
func (s *Store) CompleteWithResponse(ctx context.Context, programID, transaction, responseTransaction string, seeds, proof []byte) error {
	return s.finish(ctx, "complete_with_response", programID, transaction, map[string]any{
		"status":               encodeStatus(StatusProcessed),
		"vrf_seeds":            seeds,
		"vrf_proof":            proof,
		"response_transaction": responseTransaction,
		"errors":               nil,
	})
}

// CompleteNoop finishes a Processing record whose logs held no VRF request.
func (s *Store) CompleteNoop(ctx context.Context, programID, transaction string) error {
	return s.finish(ctx, "complete_noop", programID, transaction, map[string]any{
		"status": encodeStatus(StatusProcessed),
		"errors": nil,
	})
}

// Fail finishes a Processing record as FatalError or RetryableError.
func (s *Store) Fail(ctx context.Context, programID, transaction string, fatal bool, message string) error {
	status := StatusRetryableError
	if fatal {
		status = StatusFatalError
	}
	return s.finish(ctx, "fail", programID, transaction, map[string]any{
		"status": encodeStatus(status),
		"errors": message,
	})
}

func (s *Store) finish(ctx context.Context, op, programID, transaction string, update map[string]any) error {
	db, cancel := s.session(ctx)
	defer cancel()

	update["time_update"] = s.now()
	result := db.Model(&store.VrfTransaction{}).
		Where(identity(programID, transaction)).
		Where("status = ?", encodeStatus(StatusProcessing)).
		Updates(update)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to %s transaction %s", op, transaction)
	}
	if result.RowsAffected != 1 {
		return errors.Wrapf(ErrNoRowAffected, "%s transaction %s", op, transaction)
	}
	return nil
}

// ListRetryable returns up to RetryBatchLimit RetryableError records whose
// last update is older than olderThan, oldest first.
func (s *Store) ListRetryable(ctx context.Context, olderThan time.Duration) ([]RetryableTransaction, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	cutoff := s.now().Add(-olderThan)
	var rows []store.VrfTransaction
	if err := db.Select("program_id", "transaction", "log_messages").
		Where("status = ? AND time_update < ?", encodeStatus(StatusRetryableError), cutoff).
		Order("time_update ASC").
		Limit(RetryBatchLimit).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query retryable transactions")
	}

	out := make([]RetryableTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, RetryableTransaction{
			ProgramID:   row.ProgramID,
			Transaction: row.Transaction,
			LogMessages: row.LogMessages,
		})
	}
	return out, nil
}

// ListRecentSignatures returns the newest known signatures of a program,
// most recently created first.
func (s *Store) ListRecentSignatures(ctx context.Context, programID string, limit int) ([]string, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var signatures []string
	if err := db.Model(&store.VrfTransaction{}).
		Where(map[string]any{"program_id": programID}).
		Order("time_create DESC").
		Order("id DESC").
		Limit(limit).
		Pluck("transaction", &signatures).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to query recent signatures for %s", programID)
	}
	return signatures, nil
}

// Get loads a single record. It returns gorm.ErrRecordNotFound (wrapped) when
// the pair is unknown.
func (s *Store) Get(ctx context.Context, programID, transaction string) (*Record, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var row store.VrfTransaction
	if err := db.Where(identity(programID, transaction)).First(&row).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load transaction %s", transaction)
	}
	return toRecord(row)
}

// CountByStatus returns the number of records in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var rows []struct {
		Status int32
		Count  int64
	}
	if err := db.Model(&store.VrfTransaction{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count transactions by status")
	}

	counts := make(map[Status]int64, len(Statuses))
	for _, status := range Statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		status, err := decodeStatus(row.Status)
		if err != nil {
			s.logger.Warn().Int32("code", row.Status).Msg("ignoring rows with unknown status code")
			continue
		}
		counts[status] = row.Count
	}
	return counts, nil
}

// RecoverStaleProcessing moves records that have been Processing for longer
// than olderThan to RetryableError. Called on startup to release records
// abandoned by a crashed process.
func (s *Store) RecoverStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	now := s.now()
	result := db.Model(&store.VrfTransaction{}).
		Where("status = ? AND time_update < ?", encodeStatus(StatusProcessing), now.Add(-olderThan)).
		Updates(map[string]any{
			"status":      encodeStatus(StatusRetryableError),
			"errors":      "processing interrupted before completion",
			"time_update": now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to recover stale processing transactions")
	}
	if result.RowsAffected > 0 {
		s.logger.Info().
			Int64("recovered_count", result.RowsAffected).
			Msg("moved stale PROCESSING transactions to RETRYABLE_ERROR")
	}
	return result.RowsAffected, nil
}

// RecoverUnclaimed moves records that stayed New for longer than olderThan
// to RetryableError so the retry sweep picks them up. A record stays New when
// the process stopped between storing and claiming it.
func (s *Store) RecoverUnclaimed(ctx context.Context, olderThan time.Duration) (int64, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	now := s.now()
	result := db.Model(&store.VrfTransaction{}).
		Where("status = ? AND time_update < ?", encodeStatus(StatusNew), now.Add(-olderThan)).
		Updates(map[string]any{
			"status":      encodeStatus(StatusRetryableError),
			"errors":      "stored but never claimed",
			"time_update": now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to recover unclaimed transactions")
	}
	if result.RowsAffected > 0 {
		s.logger.Info().
			Int64("recovered_count", result.RowsAffected).
			Msg("moved unclaimed NEW transactions to RETRYABLE_ERROR")
	}
	return result.RowsAffected, nil
}

func toRecord(row store.VrfTransaction) (*Record, error) {
	status, err := decodeStatus(row.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", row.Transaction)
	}
	return &Record{
		ProgramID:           row.ProgramID,
		Transaction:         row.Transaction,
		Status:              status,
		LogMessages:         row.LogMessages,
		VrfSeeds:            row.VrfSeeds,
		VrfProof:            row.VrfProof,
		ResponseTransaction: row.ResponseTransaction,
		Errors:              row.Errors,
		TimeCreate:          row.TimeCreate,
		TimeUpdate:          row.TimeUpdate,
	}, nil
}

// isDuplicate recognises unique-constraint violations. TranslateError maps
// most drivers to gorm.ErrDuplicatedKey; the message checks cover drivers
// opened without it.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
