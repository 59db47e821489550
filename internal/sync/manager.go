package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/logger"
)

const (
	jobRefresh  = "refresh"
	jobBackfill = "backfill"
)

// BackfillRequest narrows a backfill. Zero values fall back to the sync config.
type BackfillRequest struct {
	Entities  []string `json:"entities,omitempty" validate:"omitempty,dive,oneof=kimeno_szamla keszlet raktari_mozgas cikk"`
	StartYear int      `json:"start_year,omitempty" validate:"omitempty,gte=1990,lte=2100"`
	DelayMs   int      `json:"delay_ms,omitempty" validate:"gte=0"`
}

type BackfillStatus struct {
	Running bool             `json:"running"`
	Request *BackfillRequest `json:"request,omitempty"`
	LastRun *RunSummary      `json:"last_run,omitempty"`
}

// Manager owns the long-running side of the service: the background
// backfill and the guarded periodic refresh. Single requests go straight to
// the engine.
type Manager struct {
	engine *Engine
	cfg    config.SyncConfig
	guard  JobGuard
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu       sync.Mutex
	backfill BackfillStatus
}

func NewManager(engine *Engine, cfg config.SyncConfig, guard JobGuard) *Manager {
	if guard == nil {
		guard = NewLocalGuard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine: engine,
		cfg:    cfg,
		guard:  guard,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

func (m *Manager) Sync(ctx context.Context, kind entity.Kind, filter entity.Filter) Outcome {
	return m.engine.Sync(ctx, kind, filter)
}

func (m *Manager) Freshness(ctx context.Context, kind entity.Kind, filter entity.Filter) (Freshness, error) {
	return m.engine.Freshness(ctx, kind, filter)
}

// Refresh re-syncs inventory and the current month of dated entities. It
// returns a "skipped" summary when another refresh holds the job.
func (m *Manager) Refresh(ctx context.Context) RunSummary {
	started := m.now()
	summary := RunSummary{Status: "skipped", StartedAt: started}

	ran, err := m.guard.Do(ctx, jobRefresh, func(ctx context.Context) {
		pool := NewWorkerPool(m.engine, m.cfg.Workers, 0)
		summary = summarize(started, pool.Run(ctx, PlanRefresh(started)))
	})
	if err != nil {
		logger.Log.Error("Refresh guard failed", zap.Error(err))
		summary.Status = "error"
	} else if !ran {
		logger.Log.Info("Refresh already running elsewhere, skipping")
	}
	finished := m.now()
	summary.FinishedAt = &finished
	return summary
}

// StartBackfill validates req and runs the backfill in the background.
func (m *Manager) StartBackfill(req BackfillRequest) error {
	kinds, err := m.resolveKinds(req.Entities)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backfill.Running {
		return ErrBackfillRunning
	}
	if m.ctx.Err() != nil {
		return context.Canceled
	}
	m.backfill.Running = true
	m.backfill.Request = &req

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		summary := m.runBackfill(m.ctx, kinds, req)

		m.mu.Lock()
		m.backfill.Running = false
		m.backfill.LastRun = &summary
		m.mu.Unlock()
	}()
	return nil
}

func (m *Manager) resolveKinds(names []string) ([]entity.Kind, error) {
	if len(names) == 0 {
		return entity.Kinds, nil
	}
	kinds := make([]entity.Kind, 0, len(names))
	for _, n := range names {
		k, err := entity.ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (m *Manager) runBackfill(ctx context.Context, kinds []entity.Kind, req BackfillRequest) RunSummary {
	started := m.now()
	startYear := req.StartYear
	if startYear == 0 {
		startYear = m.cfg.BackfillStartYear
	}
	delay := m.cfg.ChunkDelay
	if req.DelayMs > 0 {
		delay = time.Duration(req.DelayMs) * time.Millisecond
	}

	summary := RunSummary{Status: "skipped", StartedAt: started}
	ran, err := m.guard.Do(ctx, jobBackfill, func(ctx context.Context) {
		jobs := PlanBackfill(kinds, startYear, started)
		logger.Log.Info("Backfill started",
			zap.Int("chunks", len(jobs)),
			zap.Int("start_year", startYear),
			zap.Duration("delay", delay),
		)
		summary = summarize(started, NewWorkerPool(m.engine, m.cfg.Workers, delay).Run(ctx, jobs))
	})
	switch {
	case err != nil:
		logger.Log.Error("Backfill guard failed", zap.Error(err))
		summary.Status = "error"
	case !ran:
		logger.Log.Info("Backfill already running elsewhere, skipping")
	default:
		logger.Log.Info("Backfill finished",
			zap.Int("chunks", summary.TotalChunks),
			zap.Int64("records", summary.TotalRecords),
			zap.Int("errors", summary.Errors),
		)
	}
	finished := m.now()
	summary.FinishedAt = &finished
	return summary
}

func (m *Manager) BackfillStatus() BackfillStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backfill
}

// GetStatus is "running" while a backfill is in progress, "idle" otherwise.
func (m *Manager) GetStatus() string {
	if m.BackfillStatus().Running {
		return "running"
	}
	return "idle"
}

// Stop cancels a running backfill and waits for it to wind down.
func (m *Manager) Stop() {
	logger.Log.Info("Stopping sync manager")
	m.cancel()
	m.wg.Wait()
}
