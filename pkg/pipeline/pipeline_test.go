package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

func answerHandler(t *testing.T, answer string, sources []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/answer" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			http.Error(w, "empty question", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(models.Answer{Text: answer, Sources: sources})
	}
}

func newClient(t *testing.T, urls ...string) *Client {
	t.Helper()
	cfg := config.PipelineConfig{Timeout: 5 * time.Second}
	for i, u := range urls {
		cfg.Backends = append(cfg.Backends, config.BackendConfig{
			Name: string(rune('a' + i)),
			URL:  u,
		})
	}
	return New(cfg, nil)
}

func TestAnswer(t *testing.T) {
	srv := httptest.NewServer(answerHandler(t, "JSX is a syntax extension.", []string{"react.md"}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	answer, err := c.Answer(context.Background(), "what is jsx?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Text != "JSX is a syntax extension." {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "react.md" {
		t.Errorf("sources = %v", answer.Sources)
	}
}

func TestFailoverOn5xx(t *testing.T) {
	var firstCalls atomic.Int64
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstCalls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	healthy := httptest.NewServer(answerHandler(t, "fallback answer", nil))
	defer healthy.Close()

	c := newClient(t, failing.URL, healthy.URL)
	answer, err := c.Answer(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Text != "fallback answer" {
		t.Errorf("answer = %q", answer.Text)
	}
	if firstCalls.Load() != 1 {
		t.Errorf("primary called %d times, want 1", firstCalls.Load())
	}
}

func TestFailoverOnConnectionError(t *testing.T) {
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	healthy := httptest.NewServer(answerHandler(t, "fallback answer", nil))
	defer healthy.Close()

	c := newClient(t, deadURL, healthy.URL)
	answer, err := c.Answer(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Text != "fallback answer" {
		t.Errorf("answer = %q", answer.Text)
	}
}

func TestNoFailoverOn4xx(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad question", http.StatusUnprocessableEntity)
	}))
	defer rejecting.Close()

	var secondCalls atomic.Int64
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalls.Add(1)
		json.NewEncoder(w).Encode(models.Answer{Text: "should not be used"})
	}))
	defer fallback.Close()

	c := newClient(t, rejecting.URL, fallback.URL)
	if _, err := c.Answer(context.Background(), "anything"); err == nil {
		t.Fatal("expected a hard error for 4xx response")
	}
	if secondCalls.Load() != 0 {
		t.Errorf("fallback called %d times after a 4xx, want 0", secondCalls.Load())
	}
}

func TestAllBackendsFail(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down too", http.StatusBadGateway)
	}))
	defer b.Close()

	c := newClient(t, a.URL, b.URL)
	if _, err := c.Answer(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when every backend fails")
	}
}

func TestContextCancellation(t *testing.T) {
	// drain the body so the server notices the client disconnect and the
	// handler returns, letting Close finish
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer slow.Close()

	c := newClient(t, slow.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Answer(ctx, "anything"); err == nil {
		t.Fatal("expected error when context expires")
	}
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer healthy.Close()

	c := newClient(t, healthy.URL)
	h := c.Health(context.Background())
	if h.Status != models.StatusHealthy || !h.Connected {
		t.Errorf("healthy backend reported %+v", h)
	}

	healthy.Close()
	h = c.Health(context.Background())
	if h.Status != models.StatusUnhealthy {
		t.Errorf("down backend reported %+v", h)
	}
	if h.Error == "" {
		t.Error("down backend reported no error detail")
	}
}
