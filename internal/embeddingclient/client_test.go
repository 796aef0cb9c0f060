package embeddingclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, srv *httptest.Server, overrides func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Endpoint:    srv.URL,
		Model:       "test-model",
		RPS:         1000,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return New(cfg)
}

func TestEmbedEmptyInputReturnsNil(t *testing.T) {
	c := New(Config{Endpoint: "http://unused"})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil/nil for empty input, got %v, %v", vecs, err)
	}
}

func TestEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{float32(i), 0.5}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestEmbedRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("expected eventual success after retries, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable client error, got %d", calls)
	}
}

func TestEmbedGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv, func(cfg *Config) { cfg.MaxRetries = 2 })
	_, err := c.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected MaxRetries+1=3 calls, got %d", calls)
	}
}

func TestEmbedHonorsRetryAfterHeader(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
}

func TestEmbedMismatchedLengthIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	c := testClient(t, srv, func(cfg *Config) { cfg.MaxRetries = 0 })
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on embeddings/input length mismatch")
	}
}

func TestBackoffDelayCappedAndJittered(t *testing.T) {
	c := New(Config{BackoffBase: time.Second, BackoffCap: 2 * time.Second})
	for attempt := 1; attempt <= 10; attempt++ {
		d := c.backoffDelay(attempt)
		if d > c.cfg.BackoffCap+c.cfg.BackoffCap/4 {
			t.Fatalf("attempt %d: delay %v exceeds cap with jitter", attempt, d)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: delay must be positive, got %v", attempt, d)
		}
	}
}

func TestRetryAfterFromHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	if got := retryAfterFromHeader(h); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
	if got := retryAfterFromHeader(http.Header{}); got != 0 {
		t.Fatalf("expected 0 for missing header, got %v", got)
	}
}
