// Package management provides the HTTP client for the external proxy
// management API: usage snapshots, request history, realtime event gap-fill,
// auth account listings, and bulk export/import.
package management

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

	"github.com/quotio/usage-observer/internal/event"
	"github.com/quotio/usage-observer/internal/evidence"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithManagementKey sets the bearer token attached to every request. An empty
// key means requests are sent unauthenticated.
func WithManagementKey(key string) ClientOption {
	return func(c *Client) {
		c.key = key
	}
}

// Client is an HTTP client for the management API.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// NewClient creates a management API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UsageStats is the aggregate usage snapshot reported by the management API.
type UsageStats struct {
	TotalRequests int64            `json:"total_requests"`
	SuccessCount  int64            `json:"success_count"`
	ErrorCount    int64            `json:"error_count"`
	TotalTokens   int64            `json:"total_tokens"`
	ByProvider    map[string]int64 `json:"by_provider,omitempty"`
}

// AuthAccount is one configured provider account. Read-only from the
// observer's perspective; used only for correlation lookups.
type AuthAccount struct {
	Provider string `json:"provider"`
	Index    string `json:"index"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// LogLine is one proxy log entry fetched from the management API.
type LogLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
}

// UsageStats fetches the aggregate usage snapshot.
func (c *Client) UsageStats(ctx context.Context) (*UsageStats, error) {
	var out UsageStats
	if err := c.getJSON(ctx, "/v0/management/usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestHistory fetches the newest batch of usage history records.
func (c *Client) RequestHistory(ctx context.Context, limit int) ([]evidence.Record, error) {
	var out struct {
		Requests []evidence.Record `json:"requests"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/v0/management/request-history", q, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// UsageEvents fetches events with seq greater than sinceSeq, bounded by
// limit. Used as the REST gap-fill path when the stream drops.
func (c *Client) UsageEvents(ctx context.Context, sinceSeq int64, limit int) ([]event.Event, error) {
	var out struct {
		Events []event.Event `json:"events"`
	}
	q := url.Values{
		"since_seq": {strconv.FormatInt(sinceSeq, 10)},
		"limit":     {strconv.Itoa(limit)},
	}
	if err := c.getJSON(ctx, "/v0/management/usage/events", q, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// AuthAccounts lists the configured provider accounts.
func (c *Client) AuthAccounts(ctx context.Context) ([]AuthAccount, error) {
	var out struct {
		Accounts []AuthAccount `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/v0/management/auth-files", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Logs fetches the most recent proxy log lines.
func (c *Client) Logs(ctx context.Context, limit int) ([]LogLine, error) {
	var out struct {
		Logs []LogLine `json:"logs"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/v0/management/logs", q, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// StreamURL returns the SSE endpoint for live events, with an optional resume
// cursor. Returns false when streaming is unavailable (no base URL
// configured).
func (c *Client) StreamURL(sinceSeq int64) (string, bool) {
	if c.baseURL == "" {
		return "", false
	}
	u := c.baseURL + "/v0/management/usage/stream"
	if sinceSeq > 0 {
		u += "?since_seq=" + strconv.FormatInt(sinceSeq, 10)
	}
	return u, true
}

// Authorize attaches the bearer token to a request, if one is configured.
func (c *Client) Authorize(req *http.Request) {
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
}

// ExportUsage fetches the full usage dataset as an opaque JSON blob. The
// schema is owned by the management API; the observer only transports it.
func (c *Client) ExportUsage(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v0/management/usage/export", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.Authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export failed (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ImportUsage uploads a previously exported usage dataset.
func (c *Client) ImportUsage(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v0/management/usage/import", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.Authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("import request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("import failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.Authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
