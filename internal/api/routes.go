package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

// Service is the part of the sync manager the HTTP layer drives.
type Service interface {
	Sync(ctx context.Context, kind entity.Kind, filter entity.Filter) sync.Outcome
	Freshness(ctx context.Context, kind entity.Kind, filter entity.Filter) (sync.Freshness, error)
	Refresh(ctx context.Context) sync.RunSummary
	StartBackfill(req sync.BackfillRequest) error
	BackfillStatus() sync.BackfillStatus
	GetStatus() string
}

// HistoryReader lists recent sync attempts.
type HistoryReader interface {
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*store.SyncHistory, error)
}

type Handler struct {
	service  Service
	history  HistoryReader
	metrics  http.Handler
	cfg      config.ServerConfig
	validate *validator.Validate
}

func NewHandler(service Service, history HistoryReader, metrics http.Handler, cfg config.ServerConfig) *Handler {
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Handler{
		service:  service,
		history:  history,
		metrics:  metrics,
		cfg:      cfg,
		validate: validator.New(),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Post("/sync", h.TriggerSync)
		r.Post("/freshness", h.CheckFreshness)
		r.Post("/refresh", h.Refresh)
		r.Post("/backfill", h.StartBackfill)
		r.Get("/backfill/status", h.GetBackfillStatus)
		r.Get("/history", h.GetHistory)
	})

	return r
}
