package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusRunning SyncStatus = "running"
	StatusError   SyncStatus = "error"

	// Only recorded on sync_history rows.
	StatusSuccess SyncStatus = "success"
)

// SyncState is the debounce lock and freshness record of one
// (entity, filter fingerprint) pair.
type SyncState struct {
	Entity        string          `db:"entity"`
	FilterHash    string          `db:"filter_hash"`
	FilterParams  json.RawMessage `db:"filter_params"`
	LastSyncedAt  sql.NullTime    `db:"last_synced_at"`
	SyncStartedAt sql.NullTime    `db:"sync_started_at"`
	Status        SyncStatus      `db:"sync_status"`
	ErrorMessage  sql.NullString  `db:"error_message"`
	TTLSeconds    int             `db:"ttl_seconds"`
	PagesFetched  int             `db:"pages_fetched"`
	RecordsSynced int64           `db:"records_synced"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// EntityConfig governs how an entity is synced.
type EntityConfig struct {
	Entity      string `db:"entity"`
	TTLSeconds  int    `db:"ttl_seconds"`
	PageSize    int    `db:"page_size"`
	Enabled     bool   `db:"enabled"`
	Description string `db:"description"`
}

func (c EntityConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Claim asks for the sync lock of a fingerprint.
type Claim struct {
	Entity       string
	FilterHash   string
	FilterParams json.RawMessage
	TTL          time.Duration
}

// Release ends a claimed attempt. RunID ties it to its history row.
type Release struct {
	Entity        string
	FilterHash    string
	RunID         string
	PagesFetched  int
	RecordsSynced int64
	ErrorMessage  string
}

// SyncHistory is the audit row of one claimed sync attempt.
type SyncHistory struct {
	ID            string         `db:"id"`
	Entity        string         `db:"entity"`
	FilterHash    string         `db:"filter_hash"`
	StartedAt     time.Time      `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	PagesFetched  int            `db:"pages_fetched"`
	RecordsSynced int64          `db:"records_synced"`
	Status        SyncStatus     `db:"status"`
	ErrorMessage  sql.NullString `db:"error_message"`
}
