package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gradebook/internal/outcome"
	"gradebook/internal/pkg/circuit"

	"github.com/tidwall/gjson"
)

// ClientConfig describes how to reach the memory service.
type ClientConfig struct {
	BaseURL          string
	APIKey           string
	TimeoutSeconds   int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Client talks to the memory service over REST.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker
}

var _ Service = (*Client)(nil)

// NewClient constructs a memory service client from configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("memory.base_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing memory.base_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.NewBreaker("memory", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}, nil
}

// Ingest pushes one narrative entry. Transport and non-2xx failures are
// returned as-is for the sync adapter's bounded retry to handle.
func (c *Client) Ingest(ctx context.Context, entry Entry) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("memory service circuit open")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	endpoint := c.baseURL.JoinPath("api", "memories")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.breaker.RecordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("memory ingest returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	c.breaker.RecordSuccess()
	return nil
}

// Search runs a free-text semantic query and returns ranked snippets.
// Failure is wrapped as *outcome.SyncError; the recall engine reports it as
// "memory service unavailable" and never retries.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if !c.breaker.Allow() {
		return nil, &outcome.SyncError{Op: "search", Attempts: 0, Err: fmt.Errorf("memory service circuit open")}
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	endpoint := c.baseURL.JoinPath("api", "memories", "search")
	values := endpoint.Query()
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &outcome.SyncError{Op: "search", Attempts: 1, Err: err}
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &outcome.SyncError{Op: "search", Attempts: 1, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return nil, &outcome.SyncError{Op: "search", Attempts: 1,
			Err: fmt.Errorf("memory search returned %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &outcome.SyncError{Op: "search", Attempts: 1, Err: err}
	}
	c.breaker.RecordSuccess()
	return parseSnippets(body), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// parseSnippets tolerates both {"results": [...]} envelopes and bare arrays.
func parseSnippets(body []byte) []Snippet {
	root := gjson.ParseBytes(body)
	results := root.Get("results")
	if !results.Exists() {
		results = root
	}
	out := make([]Snippet, 0)
	results.ForEach(func(_, item gjson.Result) bool {
		snippet := Snippet{
			Title:   item.Get("title").String(),
			Content: item.Get("content").String(),
			Score:   item.Get("score").Float(),
		}
		if snippet.Content == "" {
			snippet.Content = item.Get("body").String()
		}
		if snippet.Title != "" || snippet.Content != "" {
			out = append(out, snippet)
		}
		return true
	})
	return out
}
