package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps calls to the coaching session API.
type Client struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// EventEnvelope mirrors the SSE payload emitted by /events.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, target interface{}) error {
	httpClient := &http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetJSON issues a GET and decodes the response into target.
func (c *Client) GetJSON(ctx context.Context, path string, target interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// PostJSON issues a POST with payload encoded as JSON. A nil payload sends
// no body.
func (c *Client) PostJSON(ctx context.Context, path string, payload, target interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// StreamEvents opens the SSE feed and invokes handler for each event.
// Returning false stops the stream.
func (c *Client) StreamEvents(ctx context.Context, handler func(EventEnvelope) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET /events failed: %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	var (
		eventType string
		eventID   string
		dataLines []string
	)

	dispatch := func() bool {
		if len(dataLines) == 0 {
			return true
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var envelope EventEnvelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return true
		}
		if envelope.Type == "" {
			envelope.Type = eventType
		}
		if envelope.ID == "" {
			envelope.ID = eventID
		}
		return handler(envelope)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
			eventType = ""
			eventID = ""
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(line[len("id:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
	}
}
