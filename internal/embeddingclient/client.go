// Package embeddingclient talks to an external embedding model over HTTP.
// It combines a token-bucket rate limiter with reactive backoff on 429s, the
// same two-layer pattern the reference rate limiters use for external APIs,
// generalized here to cover network errors and 5xx responses too.
package embeddingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrorKind classifies why an embedding request failed, so callers can
// decide whether to retry, fail the job, or surface a user-facing error.
type ErrorKind string

const (
	ErrNetwork     ErrorKind = "network"
	ErrTimeout     ErrorKind = "timeout"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrServer      ErrorKind = "server_error"
	ErrClient      ErrorKind = "client_error"
)

// Error wraps a classified embedding client failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("embedding client: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	RPS         float64
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Client embeds batches of text, preserving input order in its output.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
}

// New builds a Client from cfg, filling in sane defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.RPS <= 0 {
		cfg.RPS = 5.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed requests vectors for texts, retrying transient failures with
// exponential backoff (base, ×2 per attempt, ±25% jitter, capped) up to
// MaxRetries times after the first attempt (MaxRetries+1 attempts in all),
// honoring a provider Retry-After hint when present.
// The returned slice is the same length and order as texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.waitForQuota(ctx); err != nil {
			return nil, err
		}

		vectors, retryAfter, err := c.doRequest(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var classified *Error
		if ce, ok := err.(*Error); ok {
			classified = ce
		}
		if classified != nil && classified.Kind == ErrClient {
			return nil, err
		}
		if retryAfter > 0 {
			c.recordRetryAfter(retryAfter)
		}
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) waitForQuota(ctx context.Context) error {
	c.mu.Lock()
	retryAt := c.retryAt
	c.mu.Unlock()
	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) recordRetryAfter(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := time.Now().Add(d)
	if at.After(c.retryAt) {
		c.retryAt = at
	}
}

// backoffDelay computes base * 2^(attempt-1) with +/-25% jitter, capped.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.cfg.BackoffBase << uint(attempt-1)
	if d > c.cfg.BackoffCap || d <= 0 {
		d = c.cfg.BackoffCap
	}
	jitter := 0.75 + rand.Float64()*0.5 // [0.75, 1.25)
	return time.Duration(float64(d) * jitter)
}

func (c *Client) doRequest(ctx context.Context, texts []string) ([][]float32, time.Duration, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, 0, &Error{Kind: ErrClient, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &Error{Kind: ErrClient, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &Error{Kind: ErrTimeout, Err: err}
		}
		return nil, 0, &Error{Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, 0, &Error{Kind: ErrNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfterFromHeader(resp.Header), &Error{Kind: ErrRateLimited, Err: fmt.Errorf("rate limited")}
	case resp.StatusCode >= 500:
		return nil, 0, &Error{Kind: ErrServer, Err: fmt.Errorf("server error: status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, 0, &Error{Kind: ErrClient, Err: fmt.Errorf("client error: status %d: %s", resp.StatusCode, payload)}
	}

	var decoded embedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, 0, &Error{Kind: ErrClient, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, 0, &Error{Kind: ErrServer, Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(decoded.Embeddings))}
	}
	return decoded.Embeddings, 0, nil
}

func retryAfterFromHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
