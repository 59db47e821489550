package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/database"
	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

type MySQLStore struct {
	db *database.Database
	// now stamps synced_at on record rows.
	now func() time.Time
}

func NewMySQLStore(db *database.Database) *MySQLStore {
	return &MySQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and seeds entity_config. Every statement is
// idempotent, so it runs on each start.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Log.Info("Schema applied")
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (s *MySQLStore) GetEntityConfig(ctx context.Context, name string) (*EntityConfig, error) {
	query := `SELECT entity, ttl_seconds, page_size, enabled, description
			  FROM entity_config WHERE entity = ?`

	var c EntityConfig
	err := s.db.DB.QueryRowContext(ctx, query, name).Scan(
		&c.Entity,
		&c.TTLSeconds,
		&c.PageSize,
		&c.Enabled,
		&c.Description,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MySQLStore) GetSyncState(ctx context.Context, name, filterHash string) (*SyncState, error) {
	query := `SELECT entity, filter_hash, filter_params, last_synced_at, sync_started_at, sync_status,
			  error_message, ttl_seconds, pages_fetched, records_synced, updated_at
			  FROM sync_metadata WHERE entity = ? AND filter_hash = ?`

	var (
		state  SyncState
		params []byte
	)
	err := s.db.DB.QueryRowContext(ctx, query, name, filterHash).Scan(
		&state.Entity,
		&state.FilterHash,
		&params,
		&state.LastSyncedAt,
		&state.SyncStartedAt,
		&state.Status,
		&state.ErrorMessage,
		&state.TTLSeconds,
		&state.PagesFetched,
		&state.RecordsSynced,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state.FilterParams = params
	return &state, nil
}

const insertRunningSQL = `INSERT INTO sync_metadata
			  (entity, filter_hash, filter_params, sync_started_at, sync_status, ttl_seconds, updated_at)
			  VALUES (?, ?, ?, UTC_TIMESTAMP(6), 'running', ?, UTC_TIMESTAMP(6))
			  ON DUPLICATE KEY UPDATE id = id`

// claimSQL moves an existing row to running when it is idle, failed, or
// running with both timestamps older than the TTL.
const claimSQL = `UPDATE sync_metadata
			  SET sync_status = 'running', sync_started_at = UTC_TIMESTAMP(6), error_message = NULL,
			  filter_params = ?, ttl_seconds = ?, updated_at = UTC_TIMESTAMP(6)
			  WHERE entity = ? AND filter_hash = ?
			  AND (sync_status <> 'running'
			  OR ((last_synced_at IS NULL OR last_synced_at <= UTC_TIMESTAMP(6) - INTERVAL ? SECOND)
			  AND (sync_started_at IS NULL OR sync_started_at <= UTC_TIMESTAMP(6) - INTERVAL ? SECOND)))`

// ClaimSyncLock is a compare-and-swap on the fingerprint's row: either the
// insert creates it in running state or the conditional update flips it.
// Each statement is atomic on its own and reports success through the
// affected row count.
func (s *MySQLStore) ClaimSyncLock(ctx context.Context, c Claim) (bool, error) {
	ttl := int64(c.TTL / time.Second)
	params := nullJSON(c.FilterParams)

	res, err := s.db.DB.ExecContext(ctx, insertRunningSQL, c.Entity, c.FilterHash, params, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to insert sync state: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 1 {
		return true, nil
	}

	res, err = s.db.DB.ExecContext(ctx, claimSQL, params, ttl, c.Entity, c.FilterHash, ttl, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim sync state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *MySQLStore) CompleteSync(ctx context.Context, rel Release) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sync_metadata
			  SET sync_status = 'idle', last_synced_at = UTC_TIMESTAMP(6), error_message = NULL,
			  pages_fetched = ?, records_synced = ?, updated_at = UTC_TIMESTAMP(6)
			  WHERE entity = ? AND filter_hash = ?`,
			rel.PagesFetched, rel.RecordsSynced, rel.Entity, rel.FilterHash)
		if err != nil {
			return fmt.Errorf("failed to complete sync state: %w", err)
		}
		return finishHistory(ctx, tx, rel, StatusSuccess)
	})
}

// FailSync records the error and leaves the counters of the last good run.
func (s *MySQLStore) FailSync(ctx context.Context, rel Release) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sync_metadata
			  SET sync_status = 'error', error_message = ?, updated_at = UTC_TIMESTAMP(6)
			  WHERE entity = ? AND filter_hash = ?`,
			rel.ErrorMessage, rel.Entity, rel.FilterHash)
		if err != nil {
			return fmt.Errorf("failed to fail sync state: %w", err)
		}
		return finishHistory(ctx, tx, rel, StatusError)
	})
}

func finishHistory(ctx context.Context, tx *sql.Tx, rel Release, status SyncStatus) error {
	if rel.RunID == "" {
		return nil
	}
	var msg sql.NullString
	if rel.ErrorMessage != "" {
		msg = sql.NullString{String: rel.ErrorMessage, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `UPDATE sync_history
			  SET completed_at = UTC_TIMESTAMP(6), pages_fetched = ?, records_synced = ?, status = ?, error_message = ?
			  WHERE id = ?`,
		rel.PagesFetched, rel.RecordsSynced, status, msg, rel.RunID)
	if err != nil {
		return fmt.Errorf("failed to update sync history: %w", err)
	}
	return nil
}

// UpsertSnapshot overwrites rows keyed by SKU.
func (s *MySQLStore) UpsertSnapshot(ctx context.Context, kind entity.Kind, records []entity.Record) error {
	return s.insert(ctx, kind, records, true)
}

// InsertIgnore skips rows whose natural key already exists.
func (s *MySQLStore) InsertIgnore(ctx context.Context, kind entity.Kind, records []entity.Record) error {
	return s.insert(ctx, kind, records, false)
}

func (s *MySQLStore) insert(ctx context.Context, kind entity.Kind, records []entity.Record, replace bool) error {
	if len(records) == 0 {
		return nil
	}
	layout, ok := tableLayouts[kind]
	if !ok {
		return &entity.ConfigError{Reason: "unknown entity", Entity: kind.String()}
	}

	syncedAt := s.now()
	args := make([]any, 0, len(records)*len(layout.columns))
	for _, r := range records {
		vals, err := layout.values(r, syncedAt)
		if err != nil {
			return err
		}
		args = append(args, vals...)
	}

	query := buildInsert(kind, layout, len(records), replace)
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", kind.Table(), err)
	}
	logger.Log.Debug("Records written",
		zap.String("table", kind.Table()),
		zap.Int("rows", len(records)),
	)
	return nil
}

func (s *MySQLStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, entity, filter_hash, started_at, completed_at, pages_fetched, records_synced, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		history.ID,
		history.Entity,
		history.FilterHash,
		history.StartedAt,
		history.CompletedAt,
		history.PagesFetched,
		history.RecordsSynced,
		history.Status,
		history.ErrorMessage,
	)

	return err
}

func (s *MySQLStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, entity, filter_hash, started_at, completed_at, pages_fetched, records_synced, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.Entity,
			&h.FilterHash,
			&h.StartedAt,
			&h.CompletedAt,
			&h.PagesFetched,
			&h.RecordsSynced,
			&h.Status,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

var _ Store = (*MySQLStore)(nil)
