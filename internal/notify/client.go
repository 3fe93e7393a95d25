// Package notify posts JSON payloads to the downstream automation webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrDisabled is returned by Post when no downstream URL is configured.
var ErrDisabled = errors.New("downstream webhook URL not configured")

const maxErrorBody = 2048

// StatusError reports a non-2xx response from the downstream endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("downstream responded %d", e.StatusCode)
	}
	return fmt.Sprintf("downstream responded %d: %s", e.StatusCode, e.Body)
}

// Client sends payloads to a single webhook URL. The zero value is a
// disabled client.
type Client struct {
	url  string
	http *http.Client
}

// New returns a client for url. A nil httpClient uses a plain http.Client
// without a timeout override.
func New(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: strings.TrimSpace(url), http: httpClient}
}

// Enabled reports whether a downstream URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// URL returns the configured downstream URL.
func (c *Client) URL() string {
	if c == nil {
		return ""
	}
	return c.url
}

// Post issues exactly one JSON POST. It does not retry.
func (c *Client) Post(ctx context.Context, payload interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post downstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
