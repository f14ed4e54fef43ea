// Package index writes records to a Solr-compatible search index over its JSON
// update API.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dgallion1/apindex/internal/fields"
	"github.com/dgallion1/apindex/internal/record"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL        string        // Core URL, e.g. http://localhost:8983/solr/ap
	APIKey     string        // Sent as a bearer token when set
	MaxRetries int           // Retries after the first attempt (default: 3, negative: none)
	RetryDelay time.Duration // Base backoff delay (default: 1s)
	Timeout    time.Duration // Per request (default: 30s)
	Stats      *Stats        // Optional latency tracker
}

// Client talks to the index update API.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	stats      *Stats
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats(time.Hour)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		stats:      cfg.Stats,
	}
}

// Stats returns the client's latency tracker.
func (c *Client) Stats() *Stats {
	return c.stats
}

// Add sends docs to the index. They become searchable after the next commit.
func (c *Client) Add(ctx context.Context, docs []*record.Record) error {
	if len(docs) == 0 {
		return nil
	}
	body, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal docs: %w", err)
	}
	if err := c.post(ctx, "add docs", "/update", body); err != nil {
		return err
	}
	c.stats.AddDocs(len(docs))
	return nil
}

// Commit makes every added document searchable.
func (c *Client) Commit(ctx context.Context) error {
	return c.post(ctx, "commit", "/update", []byte(`{"commit":{}}`))
}

// DeleteVolume removes every record of the volume druid.
func (c *Client) DeleteVolume(ctx context.Context, druid string) error {
	body, err := json.Marshal(map[string]any{
		"delete": map[string]string{"query": fields.Druid + ":" + strconv.Quote(druid)},
	})
	if err != nil {
		return fmt.Errorf("marshal delete: %w", err)
	}
	return c.post(ctx, "delete volume "+druid, "/update", body)
}

// Ping checks that the index is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/admin/ping", nil)
}

func (c *Client) post(ctx context.Context, op, path string, body []byte) error {
	return c.do(ctx, op, http.MethodPost, path, body)
}

// do runs one request, retrying transient failures with exponential backoff.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) error {
	attempt := 0
	err := retry.Do(
		func() error {
			if attempt > 0 {
				c.stats.AddRetry()
			}
			attempt++
			return c.once(ctx, op, method, path, body)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.RetryIf(IsRetryable),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return Backoff(c.retryDelay, n)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil && IsRetryable(err) {
		c.stats.AddFailure()
	}
	return err
}

func (c *Client) once(ctx context.Context, op, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.stats.Record(time.Since(start).Milliseconds())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &RetryableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{Op: op, StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	c.stats.AddFailure()
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
