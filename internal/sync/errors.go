package sync

import (
	"context"
	"errors"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/erp"
)

// ErrBackfillRunning is returned when a backfill is requested while another
// one is still in progress in this process.
var ErrBackfillRunning = errors.New("backfill already running")

// errorClass labels a failed attempt for logs and metrics.
func errorClass(err error) string {
	var (
		protocol  *erp.ProtocolError
		upstream  *erp.UpstreamError
		transport *erp.TransportError
		cfgErr    *entity.ConfigError
	)
	switch {
	case errors.As(err, &protocol):
		return "protocol"
	case errors.As(err, &upstream):
		return "upstream"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &cfgErr):
		return "config"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "store"
	}
}
