package erp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/logger"
)

const (
	DefaultTimeout          = 2 * time.Minute
	DefaultMaxResponseBytes = 64 << 20
)

// Config configures the SOAP transport.
type Config struct {
	URL              string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client posts query pages to the ERP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &Client{
		cfg: cfg,
		// The transport negotiates gzip and decodes it transparently as long
		// as Accept-Encoding is left unset.
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Call POSTs a request body and returns the raw response. Every call is
// bounded by the configured timeout.
func (c *Client) Call(ctx context.Context, entityName, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("erp: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return "", &TransportError{Timeout: isTimeout(err), Err: err}
	}
	if int64(len(raw)) > c.cfg.MaxResponseBytes {
		return "", &TransportError{Err: fmt.Errorf("response larger than %d bytes", c.cfg.MaxResponseBytes)}
	}

	logger.Log.Debug("ERP call finished",
		zap.String("entity", entityName),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}
	return string(raw), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
