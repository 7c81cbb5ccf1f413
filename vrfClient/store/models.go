// Package store contains the GORM models persisted by the VRF oracle.
//
// Database Structure (default SQLite file: <home>/databases/vrf.db):
//
//	vrf
//	├── (program_id, transaction)   unique
//	├── status                      encoded by txstore
//	├── log_messages                raw logs captured at ingestion
//	├── vrf_seeds / vrf_proof       set only with a response
//	├── response_transaction        set only with a response
//	├── errors                      set only on failure
//	└── time_create / time_update
package store

import "time"

// VrfTransaction is one observed (program, transaction) pair and the state of
// the oracle's answer to it.
type VrfTransaction struct {
	ID                  uint      `gorm:"primaryKey"`
	ProgramID           string    `gorm:"size:64;not null;uniqueIndex:idx_vrf_program_transaction,priority:1;index:idx_vrf_program_created,priority:1"`
	Transaction         string    `gorm:"size:128;not null;uniqueIndex:idx_vrf_program_transaction,priority:2"`
	Status              int32     `gorm:"not null;index:idx_vrf_status_updated,priority:1"`
	VrfSeeds            []byte    // Concatenated block hashes used as VRF input
	VrfProof            []byte    // ECVRF proof (pi)
	ResponseTransaction *string   `gorm:"size:128"`
	LogMessages         string    `gorm:"type:text;not null"` // Newline-joined log lines
	Errors              *string   `gorm:"type:text"`
	TimeCreate          time.Time `gorm:"not null;index:idx_vrf_program_created,priority:2"`
	TimeUpdate          time.Time `gorm:"not null;index:idx_vrf_status_updated,priority:2"`
}

// TableName keeps the table name used by earlier deployments.
func (VrfTransaction) TableName() string {
	return "vrf"
}
