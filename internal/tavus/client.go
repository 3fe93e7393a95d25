// Package tavus is a minimal client for the conversational video API.
package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oremus-labs/ol-cvi-coach/internal/metrics"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://tavusapi.com/v2"

// ErrMissingAPIKey is returned before any request when no key is configured.
var ErrMissingAPIKey = errors.New("TAVUS_API_KEY is not set")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tavus API error: %d", e.StatusCode)
}

// PersonaResponse is the subset of the persona creation response we use.
type PersonaResponse struct {
	PersonaID   string `json:"persona_id"`
	PersonaName string `json:"persona_name,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ConversationResponse describes a newly created conversation.
type ConversationResponse struct {
	ConversationID   string `json:"conversation_id"`
	ConversationURL  string `json:"conversation_url"`
	ConversationName string `json:"conversation_name,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// UnmarshalJSON falls back to "id" when "conversation_id" is absent.
func (r *ConversationResponse) UnmarshalJSON(data []byte) error {
	type plain ConversationResponse
	var aux struct {
		plain
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ConversationResponse(aux.plain)
	if r.ConversationID == "" {
		r.ConversationID = aux.ID
	}
	return nil
}

// Client talks to the provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// New returns a client with the default base URL when baseURL is empty.
func New(baseURL, apiKey string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// CreatePersona registers a persona and returns its id.
func (c *Client) CreatePersona(ctx context.Context, payload persona.Payload) (*PersonaResponse, error) {
	var out PersonaResponse
	if err := c.postJSON(ctx, "personas", payload, &out); err != nil {
		return nil, err
	}
	if out.PersonaID == "" {
		return nil, fmt.Errorf("persona response missing persona_id")
	}
	c.Logger.Info().Str("persona_id", out.PersonaID).Msg("created persona")
	return &out, nil
}

// CreateConversation starts a conversation for personaID. replicaID is only
// sent when non-empty; the persona's default replica is used otherwise.
func (c *Client) CreateConversation(ctx context.Context, personaID, replicaID string) (*ConversationResponse, error) {
	body := map[string]string{"persona_id": personaID}
	if replicaID != "" {
		body["replica_id"] = replicaID
	}
	var out ConversationResponse
	if err := c.postJSON(ctx, "conversations", body, &out); err != nil {
		return nil, err
	}
	c.Logger.Info().
		Str("conversation_id", out.ConversationID).
		Str("conversation_url", out.ConversationURL).
		Msg("created conversation")
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, target interface{}) (err error) {
	defer func() { metrics.ObserveTavusCall(endpoint, err) }()

	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", endpoint, err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.Logger.Error().
			Str("endpoint", url).
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("tavus API error")
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(raw)}
	}
	if target == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
