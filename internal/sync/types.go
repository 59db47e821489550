package sync

import (
	"time"
)

// OutcomeStatus is what a caller learns about one sync request.
type OutcomeStatus string

const (
	OutcomeSynced   OutcomeStatus = "synced"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeDisabled OutcomeStatus = "disabled"
	OutcomeError    OutcomeStatus = "error"
)

// Outcome is the result of Engine.Sync. Errors never escape an attempt; they
// are reported here instead.
type Outcome struct {
	Entity  string        `json:"entity"`
	Status  OutcomeStatus `json:"status"`
	Records int64         `json:"records_synced,omitempty"`
	Pages   int           `json:"pages_fetched,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (o Outcome) Failed() bool {
	return o.Status == OutcomeError
}

// Freshness is the read-only view of a fingerprint's sync state.
type Freshness struct {
	Entity        string     `json:"entity"`
	IsFresh       bool       `json:"is_fresh"`
	HasData       bool       `json:"has_data"`
	Status        string     `json:"sync_status"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	AgeSeconds    *int64     `json:"age_seconds"`
	TTLSeconds    int        `json:"ttl_seconds"`
	RecordsSynced int64      `json:"records_synced"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// StatusNeverSynced is reported for fingerprints with no state row.
const StatusNeverSynced = "never_synced"
