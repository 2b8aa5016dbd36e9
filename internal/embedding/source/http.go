package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/resilience"
)

// HTTP downloads a model once and caches it at a local path. Later loads
// read the cached copy; delete it to force a fresh download.
type HTTP struct {
	url         string
	cachePath   string
	format      string
	maxAttempts int
	client      *http.Client
	logger      *slog.Logger
}

func NewHTTP(url, cachePath, format string, maxAttempts int) *HTTP {
	return &HTTP{
		url:         url,
		cachePath:   cachePath,
		format:      format,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: 10 * time.Minute},
		logger:      slog.Default().With("component", "http-source"),
	}
}

func (h *HTTP) Name() string { return "http:" + h.url }

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.code)
}

// retryable treats client errors as permanent and everything else as
// transient.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func (h *HTTP) Load(ctx context.Context) ([]vocab.Pair, error) {
	if _, err := os.Stat(h.cachePath); errors.Is(err, os.ErrNotExist) {
		h.logger.Info("downloading model", "url", h.url, "dest", h.cachePath)
		cfg := resilience.RetryConfig{MaxAttempts: h.maxAttempts, InitialDelay: time.Second, Retryable: retryable}
		if err := resilience.Retry(ctx, "model download", cfg, h.download); err != nil {
			return nil, err
		}
		h.logger.Info("model downloaded", "dest", h.cachePath)
	} else if err != nil {
		return nil, fmt.Errorf("checking model cache: %w", err)
	}
	return NewFile(h.cachePath, h.format).Load(ctx)
}

// download streams the body to a temporary file beside the cache path and
// renames it into place, so a partial download never looks like a model.
func (h *HTTP) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", h.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{url: h.url, code: resp.StatusCode}
	}

	if dir := filepath.Dir(h.cachePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(h.cachePath), ".model-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), h.cachePath)
}
