package sync

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/erp"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/parser"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/telemetry"
)

const (
	DefaultPageSize   = 200
	DefaultBatchSize  = 500
	DefaultMaxPages   = 10000
	DefaultTTLSeconds = 1800

	skipReason = "Data is fresh or another sync is in progress"
)

// Transport sends one SOAP request body and returns the raw response.
type Transport interface {
	Call(ctx context.Context, entityName, body string) (string, error)
}

type Options struct {
	Credentials     erp.Credentials
	DefaultPageSize int
	BatchInsertSize int
	MaxPages        int
}

// Engine runs sync attempts. It holds no per-fingerprint state: two engines,
// in one process or many, coordinate only through the store's claim.
type Engine struct {
	store     store.Store
	transport Transport
	opts      Options
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func NewEngine(st store.Store, transport Transport, opts Options, metrics *telemetry.Metrics) *Engine {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.BatchInsertSize <= 0 {
		opts.BatchInsertSize = DefaultBatchSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Engine{
		store:     st,
		transport: transport,
		opts:      opts,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Sync fetches every page of kind matching filter and persists the records.
// At most one attempt per (entity, filter) fingerprint runs at a time; the
// others come back skipped.
func (e *Engine) Sync(ctx context.Context, kind entity.Kind, filter entity.Filter) Outcome {
	// An attempt runs to completion once started. The transport's per-call
	// timeout is its only bound, so a caller going away never strands a
	// half-fetched run.
	ctx = context.WithoutCancel(ctx)
	name := kind.Name()
	out := Outcome{Entity: name}
	if !kind.Valid() {
		out.Entity = kind.String()
		return e.failed(ctx, out, &entity.ConfigError{Reason: "unknown entity", Entity: kind.String()})
	}
	filter = filter.Normalize()
	fp := filter.Fingerprint(kind)
	log := logger.Log.With(zap.String("entity", name), zap.String("fingerprint", fp))

	cfg, err := e.store.GetEntityConfig(ctx, name)
	if err != nil {
		return e.failed(ctx, out, fmt.Errorf("failed to read entity config: %w", err))
	}
	if cfg == nil || !cfg.Enabled {
		log.Info("Entity disabled, not syncing")
		out.Status = OutcomeDisabled
		e.metrics.RecordSync(ctx, name, string(out.Status), 0)
		return out
	}

	parse, err := parser.For(kind)
	if err != nil {
		return e.failed(ctx, out, err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = e.opts.DefaultPageSize
	}

	prev, err := e.store.GetSyncState(ctx, name, fp)
	if err != nil {
		return e.failed(ctx, out, fmt.Errorf("failed to read sync state: %w", err))
	}
	claimed, err := e.store.ClaimSyncLock(ctx, store.Claim{
		Entity:       name,
		FilterHash:   fp,
		FilterParams: filter.Params(kind),
		TTL:          cfg.TTL(),
	})
	if err != nil {
		return e.failed(ctx, out, fmt.Errorf("failed to claim sync lock: %w", err))
	}
	if !claimed {
		log.Debug("Sync lock held elsewhere, skipping")
		out.Status = OutcomeSkipped
		out.Reason = skipReason
		e.metrics.RecordSync(ctx, name, string(out.Status), 0)
		return out
	}
	if prev != nil && prev.Status == store.StatusRunning {
		// The previous holder may still be fetching; both attempts now write
		// the same idempotent rows.
		log.Warn("Reclaimed stale running sync",
			zap.Time("started_at", prev.SyncStartedAt.Time),
			zap.Int("ttl_seconds", cfg.TTLSeconds),
		)
	}

	start := e.now()
	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	if err := e.store.CreateSyncHistory(ctx, &store.SyncHistory{
		ID:         runID,
		Entity:     name,
		FilterHash: fp,
		StartedAt:  start.UTC(),
		Status:     store.StatusRunning,
	}); err != nil {
		log.Warn("Failed to record sync history", zap.Error(err))
	}

	log.Info("Sync started", zap.Int("page_size", pageSize))
	pages, records, err := e.fetchAll(ctx, kind, filter, pageSize, parse, log)

	rel := store.Release{
		Entity:        name,
		FilterHash:    fp,
		RunID:         runID,
		PagesFetched:  pages,
		RecordsSynced: records,
	}
	elapsed := e.now().Sub(start)

	if err != nil {
		rel.ErrorMessage = err.Error()
		if rerr := e.store.FailSync(ctx, rel); rerr != nil {
			log.Error("Failed to release sync lock after error", zap.Error(rerr))
		}
		log.Error("Sync failed",
			zap.String("class", errorClass(err)),
			zap.Int("pages", pages),
			zap.Int64("records", records),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		out.Status = OutcomeError
		out.Error = err.Error()
		out.Pages = pages
		out.Records = records
		e.metrics.RecordSync(ctx, name, string(out.Status), elapsed)
		return out
	}

	if rerr := e.store.CompleteSync(ctx, rel); rerr != nil {
		log.Error("Failed to release sync lock", zap.Error(rerr))
	}
	log.Info("Sync finished",
		zap.Int("pages", pages),
		zap.Int64("records", records),
		zap.Duration("duration", elapsed),
	)
	out.Status = OutcomeSynced
	out.Pages = pages
	out.Records = records
	e.metrics.RecordSync(ctx, name, string(out.Status), elapsed)
	return out
}

func (e *Engine) failed(ctx context.Context, out Outcome, err error) Outcome {
	logger.Log.Error("Sync rejected",
		zap.String("entity", out.Entity),
		zap.String("class", errorClass(err)),
		zap.Error(err),
	)
	out.Status = OutcomeError
	out.Error = err.Error()
	e.metrics.RecordSync(ctx, out.Entity, string(out.Status), 0)
	return out
}

// fetchAll walks pages from zero. A page shorter than pageSize, or an empty
// result block, is the last one.
func (e *Engine) fetchAll(ctx context.Context, kind entity.Kind, filter entity.Filter, pageSize int,
	parse parser.Func, log *zap.Logger) (int, int64, error) {
	name := kind.Name()
	pages := 0
	var records int64

	for page := 0; ; page++ {
		if page >= e.opts.MaxPages {
			return pages, records, &erp.ProtocolError{
				Reason: fmt.Sprintf("still returning full pages after %d pages", e.opts.MaxPages),
			}
		}

		query, err := erp.BuildQuery(kind, filter, page, pageSize)
		if err != nil {
			return pages, records, err
		}
		raw, err := e.transport.Call(ctx, name, erp.Envelope(e.opts.Credentials, name, query))
		if err != nil {
			return pages, records, err
		}
		payload, err := erp.Extract(raw)
		if err != nil {
			return pages, records, err
		}
		if payload == "" {
			break
		}

		rows := erp.CountRows(payload)
		batch := parse(payload, filter.SKU)
		if err := e.persist(ctx, kind, batch); err != nil {
			return pages, records, err
		}
		pages++
		records += int64(len(batch))
		e.metrics.RecordPage(ctx, name, len(batch))
		log.Debug("Page synced",
			zap.Int("page", page),
			zap.Int("rows", rows),
			zap.Int("records", len(batch)),
		)

		if rows < pageSize {
			break
		}
	}
	return pages, records, nil
}

// persist writes records in chunks; each chunk is its own transaction.
func (e *Engine) persist(ctx context.Context, kind entity.Kind, records []entity.Record) error {
	write := e.store.InsertIgnore
	if !kind.Dated() {
		write = e.store.UpsertSnapshot
	}
	for start := 0; start < len(records); start += e.opts.BatchInsertSize {
		end := min(start+e.opts.BatchInsertSize, len(records))
		if err := write(ctx, kind, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Freshness reports how current the stored data for a fingerprint is. It
// never calls the ERP.
func (e *Engine) Freshness(ctx context.Context, kind entity.Kind, filter entity.Filter) (Freshness, error) {
	if !kind.Valid() {
		return Freshness{}, &entity.ConfigError{Reason: "unknown entity", Entity: kind.String()}
	}
	name := kind.Name()
	fp := filter.Normalize().Fingerprint(kind)

	cfg, err := e.store.GetEntityConfig(ctx, name)
	if err != nil {
		return Freshness{}, fmt.Errorf("failed to read entity config: %w", err)
	}
	state, err := e.store.GetSyncState(ctx, name, fp)
	if err != nil {
		return Freshness{}, fmt.Errorf("failed to read sync state: %w", err)
	}

	ttl := DefaultTTLSeconds
	if cfg != nil && cfg.TTLSeconds > 0 {
		ttl = cfg.TTLSeconds
	}
	f := Freshness{Entity: name, TTLSeconds: ttl}
	if state == nil {
		f.Status = StatusNeverSynced
		return f, nil
	}

	f.Status = string(state.Status)
	f.HasData = state.RecordsSynced > 0
	f.RecordsSynced = state.RecordsSynced
	if state.ErrorMessage.Valid {
		f.ErrorMessage = state.ErrorMessage.String
	}
	if state.LastSyncedAt.Valid {
		last := state.LastSyncedAt.Time
		age := e.now().Sub(last).Seconds()
		rounded := int64(math.Round(age))
		f.LastSyncedAt = &last
		f.AgeSeconds = &rounded
		f.IsFresh = age < float64(ttl)
	}
	return f, nil
}
