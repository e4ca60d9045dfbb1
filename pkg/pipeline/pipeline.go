// Package pipeline is the HTTP client for the external answer pipeline.
// Backends are tried in configured order; connection failures and 5xx
// responses fail over to the next backend, while 4xx responses are treated
// as a hard error since retrying the same request elsewhere cannot help.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

// Answerer produces an answer for a question. Implemented by Client; the
// orchestrator depends on this interface so tests can substitute a stub.
type Answerer interface {
	Answer(ctx context.Context, question string) (models.Answer, error)
	Health(ctx context.Context) models.ComponentHealth
}

// Client calls answer-pipeline backends over HTTP.
type Client struct {
	backends []config.BackendConfig
	client   *http.Client
	logger   *slog.Logger
}

// New builds a Client from pipeline configuration.
func New(cfg config.PipelineConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backends: cfg.Backends,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "pipeline"),
	}
}

type answerRequest struct {
	Question string `json:"question"`
}

// Answer asks each backend in order until one returns an answer. The
// returned error wraps the last failure when every backend is exhausted.
func (c *Client) Answer(ctx context.Context, question string) (models.Answer, error) {
	if len(c.backends) == 0 {
		return models.Answer{}, fmt.Errorf("no pipeline backends configured")
	}

	body, err := json.Marshal(answerRequest{Question: question})
	if err != nil {
		return models.Answer{}, fmt.Errorf("marshal answer request: %w", err)
	}

	var lastErr error
	for _, backend := range c.backends {
		answer, err := c.ask(ctx, backend, body)
		if err == nil {
			return answer, nil
		}
		if ctx.Err() != nil {
			return models.Answer{}, ctx.Err()
		}
		var hard *hardError
		if errors.As(err, &hard) {
			return models.Answer{}, fmt.Errorf("backend %s: %w", backend.Name, err)
		}
		c.logger.Warn("backend failed, trying next", "backend", backend.Name, "error", err)
		lastErr = err
	}
	return models.Answer{}, fmt.Errorf("all pipeline backends failed: %w", lastErr)
}

// hardError marks a response that must not fail over, such as a 4xx.
type hardError struct {
	status int
	body   string
}

func (e *hardError) Error() string {
	return fmt.Sprintf("pipeline rejected request: status %d: %s", e.status, e.body)
}

func (c *Client) ask(ctx context.Context, backend config.BackendConfig, body []byte) (models.Answer, error) {
	url := strings.TrimRight(backend.URL, "/") + "/v1/answer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.Answer{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Answer{}, fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return models.Answer{}, fmt.Errorf("read backend response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return models.Answer{}, fmt.Errorf("backend returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return models.Answer{}, &hardError{status: resp.StatusCode, body: snippet(respBody)}
	}

	var answer models.Answer
	if err := json.Unmarshal(respBody, &answer); err != nil {
		return models.Answer{}, fmt.Errorf("decode backend response: %w", err)
	}
	return answer, nil
}

// Health probes the first reachable backend's /healthz endpoint.
func (c *Client) Health(ctx context.Context) models.ComponentHealth {
	var lastErr error
	for _, backend := range c.backends {
		start := time.Now()
		err := c.probe(ctx, backend)
		if err == nil {
			return models.ComponentHealth{
				Status:    models.StatusHealthy,
				Connected: true,
				LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			}
		}
		lastErr = err
	}
	health := models.ComponentHealth{Status: models.StatusUnhealthy}
	if lastErr != nil {
		health.Error = lastErr.Error()
	}
	return health
}

func (c *Client) probe(ctx context.Context, backend config.BackendConfig) error {
	url := strings.TrimRight(backend.URL, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", backend.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", backend.Name, resp.StatusCode)
	}
	return nil
}

func snippet(b []byte) string {
	const max = 256
	s := string(b)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
