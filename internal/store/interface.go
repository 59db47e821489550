package store

import (
	"context"

	"erp-sync-service/internal/entity"
)

// Store is the shared persistence the sync engine coordinates through. Every
// mutation of a SyncState row goes through ClaimSyncLock, CompleteSync or
// FailSync, each a single atomic read-modify-write.
type Store interface {
	// Entity config; nil when the entity has no row.
	GetEntityConfig(ctx context.Context, entity string) (*EntityConfig, error)

	// Sync state; nil when the fingerprint was never synced.
	GetSyncState(ctx context.Context, entity, filterHash string) (*SyncState, error)
	ClaimSyncLock(ctx context.Context, claim Claim) (bool, error)
	CompleteSync(ctx context.Context, rel Release) error
	FailSync(ctx context.Context, rel Release) error

	// Records
	UpsertSnapshot(ctx context.Context, kind entity.Kind, records []entity.Record) error
	InsertIgnore(ctx context.Context, kind entity.Kind, records []entity.Record) error

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// General
	Close() error
}
