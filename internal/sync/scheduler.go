package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the refresh and, when configured, the backfill job.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	if s.cfg.RefreshInterval != "" {
		logger.Log.Info("Scheduling refresh", zap.String("interval", s.cfg.RefreshInterval))
		if _, err := s.cron.AddFunc(s.cfg.RefreshInterval, s.triggerRefresh); err != nil {
			return err
		}
	}
	if s.cfg.BackfillSchedule != "" {
		logger.Log.Info("Scheduling backfill", zap.String("schedule", s.cfg.BackfillSchedule))
		if _, err := s.cron.AddFunc(s.cfg.BackfillSchedule, s.triggerBackfill); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop cancels a refresh in flight and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerRefresh() {
	logger.Log.Info("Triggering scheduled refresh")
	summary := s.manager.Refresh(s.ctx)
	logger.Log.Info("Scheduled refresh done",
		zap.String("status", summary.Status),
		zap.Int64("records", summary.TotalRecords),
		zap.Int("errors", summary.Errors),
	)
}

func (s *Scheduler) triggerBackfill() {
	logger.Log.Info("Triggering scheduled backfill")
	err := s.manager.StartBackfill(BackfillRequest{})
	if errors.Is(err, ErrBackfillRunning) {
		logger.Log.Info("Backfill already running, skipping scheduled run")
		return
	}
	if err != nil {
		logger.Log.Error("Failed to start scheduled backfill", zap.Error(err))
	}
}
