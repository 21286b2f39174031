package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Syncer = (*SyncClient)(nil)

// SyncClient talks to the backend's preference REST API:
//
//	GET  /api/preferences                  full document
//	POST /api/preferences                  partial update
//	GET  /api/preferences/{category}/{key} single value
//	POST /api/preferences/reset            restore defaults
type SyncClient struct {
	baseURL string
	http    *http.Client
}

// SyncOption configures a [SyncClient].
type SyncOption func(*SyncClient)

// WithHTTPClient replaces the default HTTP client (15 s timeout).
func WithHTTPClient(hc *http.Client) SyncOption {
	return func(c *SyncClient) {
		c.http = hc
	}
}

// NewSyncClient builds a client for the API rooted at baseURL, e.g.
// "http://localhost:8000". A trailing slash is tolerated.
func NewSyncClient(baseURL string, opts ...SyncOption) *SyncClient {
	c := &SyncClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// updateEnvelope is the response shape of the update and reset endpoints.
type updateEnvelope struct {
	Status      string      `json:"status"`
	Preferences Preferences `json:"preferences"`
}

// valueEnvelope is the response shape of the single-value endpoint.
type valueEnvelope struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    any    `json:"value"`
}

// Fetch returns the backend's current document.
func (c *SyncClient) Fetch(ctx context.Context) (Preferences, error) {
	var doc Preferences
	if err := c.doJSON(ctx, http.MethodGet, "/api/preferences", nil, &doc); err != nil {
		return Preferences{}, err
	}
	return doc, nil
}

// Push applies a partial update on the backend and returns its merged
// document.
func (c *SyncClient) Push(ctx context.Context, updates map[string]any) (Preferences, error) {
	var env updateEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/preferences", updates, &env); err != nil {
		return Preferences{}, err
	}
	return env.Preferences, nil
}

// Reset restores the backend to defaults and returns the result.
func (c *SyncClient) Reset(ctx context.Context) (Preferences, error) {
	var env updateEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/preferences/reset", nil, &env); err != nil {
		return Preferences{}, err
	}
	return env.Preferences, nil
}

// Value reads a single preference from the backend without transferring the
// whole document. A missing category or key is reported as [ErrNotFound].
func (c *SyncClient) Value(ctx context.Context, category, key string) (any, error) {
	var env valueEnvelope
	path := fmt.Sprintf("/api/preferences/%s/%s", category, key)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// doJSON performs one API request. A non-nil body is sent as JSON; a non-nil
// out receives the decoded response. 404 responses map to [ErrNotFound].
func (c *SyncClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("prefs: encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("prefs: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prefs: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("prefs: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("prefs: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("prefs: decode response: %w", err)
		}
	}
	return nil
}
