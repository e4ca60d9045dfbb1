// Package server exposes the assistant over HTTP: the ask endpoint, cache
// administration, metrics reporting, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/codesearch-ai/codesearch/pkg/assistant"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

// Server routes HTTP requests to the assistant.
type Server struct {
	addr      string
	assistant *assistant.Assistant
	logger    *slog.Logger
	mux       *http.ServeMux
}

// New builds the HTTP surface around an assistant.
func New(addr string, a *assistant.Assistant, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		assistant: a,
		logger:    logger.With("component", "server"),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/ask", s.handleAsk)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/v1/cache/clear", s.handleCacheClear)
	s.mux.HandleFunc("/v1/cache/reset-stats", s.handleCacheResetStats)
	s.mux.HandleFunc("/v1/metrics/summary", s.handleMetricsSummary)
	s.mux.HandleFunc("/v1/metrics/popular", s.handleMetricsPopular)
	s.mux.HandleFunc("/v1/metrics/slow", s.handleMetricsSlow)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts down gracefully when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type askRequest struct {
	Question    string `json:"question"`
	BypassCache bool   `json:"bypass_cache"`
}

// handleAsk answers a question. Failed queries still return 200 with a
// well-formed response body; only malformed requests get error statuses.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := s.assistant.Ask(r.Context(), req.Question, req.BypassCache)

	if resp.Cached {
		w.Header().Set("X-Codesearch-Cache", "hit")
	} else {
		w.Header().Set("X-Codesearch-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.assistant.CacheStats(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deleted, err := s.assistant.ClearCache(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleCacheResetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.assistant.ResetCacheStats(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.Summary())
}

func (s *Server) handleMetricsPopular(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	popular := s.assistant.PopularQueries(queryLimit(r, 10))
	if popular == nil {
		popular = []models.PopularQuery{}
	}
	writeJSON(w, http.StatusOK, popular)
}

func (s *Server) handleMetricsSlow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	slow := s.assistant.SlowQueries(queryThreshold(r), queryLimit(r, 10))
	if slow == nil {
		slow = []models.SlowQuery{}
	}
	writeJSON(w, http.StatusOK, slow)
}

// handleHealth reports component health. Degraded still serves traffic and
// returns 200; only unhealthy returns 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.assistant.HealthCheck(r.Context())
	code := http.StatusOK
	if h.Status == models.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// queryThreshold reads ?threshold= in seconds; zero means use the
// configured default.
func queryThreshold(r *http.Request) float64 {
	v := r.URL.Query().Get("threshold")
	if v == "" {
		return 0
	}
	t, err := strconv.ParseFloat(v, 64)
	if err != nil || t <= 0 {
		return 0
	}
	return t
}

func queryLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}
