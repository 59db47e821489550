package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/sync"
)

// SyncRequest is the body of /sync and /freshness.
type SyncRequest struct {
	Entity  string        `json:"entity" validate:"required,oneof=kimeno_szamla keszlet raktari_mozgas cikk"`
	Filters entity.Filter `json:"filters"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"backfill": h.service.GetStatus(),
	})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	kind, filter, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	out := h.service.Sync(r.Context(), kind, filter)
	status := http.StatusOK
	if out.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, out)
}

func (h *Handler) CheckFreshness(w http.ResponseWriter, r *http.Request) {
	kind, filter, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	f, err := h.service.Freshness(r.Context(), kind, filter)
	if err != nil {
		logger.Log.Error("Freshness check failed", zap.String("entity", kind.Name()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	// A dropped connection must not cancel the chunks still queued.
	writeJSON(w, http.StatusOK, h.service.Refresh(context.WithoutCancel(r.Context())))
}

func (h *Handler) StartBackfill(w http.ResponseWriter, r *http.Request) {
	var req sync.BackfillRequest
	// An empty body means defaults for everything.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.service.StartBackfill(req)
	var cfgErr *entity.ConfigError
	switch {
	case errors.Is(err, sync.ErrBackfillRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func (h *Handler) GetBackfillStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.BackfillStatus())
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(r, "offset", 0)

	history, err := h.history.GetSyncHistory(r.Context(), limit, offset)
	if err != nil {
		logger.Log.Error("Failed to read sync history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sync history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) decodeSyncRequest(w http.ResponseWriter, r *http.Request) (entity.Kind, entity.Filter, bool) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return 0, entity.Filter{}, false
	}
	if req.Entity == "" {
		writeError(w, http.StatusBadRequest, "Missing entity parameter")
		return 0, entity.Filter{}, false
	}
	req.Filters = req.Filters.Normalize()
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, entity.Filter{}, false
	}

	kind, err := entity.ParseKind(req.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, entity.Filter{}, false
	}
	return kind, req.Filters, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
