// Package handlers provides HTTP request handlers for the coaching session API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-cvi-coach/internal/events"
	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/openapi"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
	"github.com/oremus-labs/ol-cvi-coach/internal/tavus"
	"github.com/oremus-labs/ol-cvi-coach/internal/validator"
	"github.com/rs/zerolog"
)

// Options configures handler runtime behavior.
type Options struct {
	HistoryLimit int
	Version      string
	// KeepAlive is the SSE comment interval. Zero means 15s.
	KeepAlive time.Duration
	Logger    zerolog.Logger
}

type sessionService interface {
	Signup(ctx context.Context, profile persona.UserProfile, scenarioKey string) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	StartCall(ctx context.Context, id string) (*session.Session, error)
	EndCall(ctx context.Context, id string, transcript []feedback.Message) (*session.Session, error)
	Feedback(ctx context.Context, id string, transcript []feedback.Message) (*session.FeedbackResult, error)
}

type scenarioCatalog interface {
	List() []persona.Scenario
}

type historyStore interface {
	ListHistory(limit int) ([]store.HistoryEntry, error)
}

type eventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func(), error)
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	sessions  sessionService
	scenarios scenarioCatalog
	history   historyStore
	events    eventSource
	opts      Options
	log       zerolog.Logger
}

// New creates a new Handler instance. history and bus may be nil.
func New(sessions sessionService, scenarios scenarioCatalog, history historyStore, bus eventSource, opts Options) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &Handler{
		sessions:  sessions,
		scenarios: scenarios,
		history:   history,
		events:    bus,
		opts:      opts,
		log:       opts.Logger,
	}
}

type signupRequest struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Topic    string `json:"topic"`
	Email    string `json:"email"`
	Scenario string `json:"scenario,omitempty"`
}

type transcriptRequest struct {
	Transcript []feedback.Message `json:"transcript,omitempty"`
}

// Health returns the health status of the service.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.opts.Version})
}

// OpenAPISpec serves the API document as JSON, or YAML with ?format=yaml.
func (h *Handler) OpenAPISpec(c *gin.Context) {
	if c.Query("format") == "yaml" {
		c.Data(http.StatusOK, "application/yaml", openapi.YAML())
		return
	}
	doc, err := openapi.JSON()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render openapi document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render openapi document"})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

// ListScenarios returns the available coaching scenarios.
func (h *Handler) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": h.scenarios.List()})
}

// Signup validates the profile and creates a session.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.sessions.Signup(c.Request.Context(), persona.UserProfile{
		Name:  req.Name,
		Role:  req.Role,
		Topic: req.Topic,
		Email: req.Email,
	}, req.Scenario)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession returns one session.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// StartCall creates the conversation for a session.
func (h *Handler) StartCall(c *gin.Context) {
	sess, err := h.sessions.StartCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":       sess.ID,
		"persona_id":       sess.PersonaID,
		"conversation_id":  sess.ConversationID,
		"conversation_url": sess.ConversationURL,
	})
}

// EndCall marks the call as ended and stores the transcript, if any.
func (h *Handler) EndCall(c *gin.Context) {
	req, ok := bindTranscript(c)
	if !ok {
		return
	}
	sess, err := h.sessions.EndCall(c.Request.Context(), c.Param("id"), req.Transcript)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Feedback generates coaching tips for the session transcript.
func (h *Handler) Feedback(c *gin.Context) {
	req, ok := bindTranscript(c)
	if !ok {
		return
	}
	result, err := h.sessions.Feedback(c.Request.Context(), c.Param("id"), req.Transcript)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListHistory returns recent audit entries.
func (h *Handler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "datastore not configured"})
		return
	}
	limit := h.opts.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := h.history.ListHistory(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// StreamEvents serves session lifecycle events as server-sent events.
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not configured"})
		return
	}
	ch, cancel, err := h.events.Subscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			if err := writeSSE(w, evt); err != nil {
				h.log.Debug().Err(err).Msg("event stream closed")
				return false
			}
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// writeSSE writes evt as one id/event/data frame.
func writeSSE(w io.Writer, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, data)
	return err
}

func bindTranscript(c *gin.Context) (transcriptRequest, bool) {
	var req transcriptRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return req, false
	}
	return req, true
}

// writeError maps service errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		profileErr  *validator.ProfileError
		upstreamErr *session.UpstreamError
		apiErr      *tavus.APIError
	)
	switch {
	case errors.As(err, &profileErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": profileErr.Error(), "fields": profileErr.Fields})
	case errors.Is(err, persona.ErrUnknownScenario):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrNoConversation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrEmptyTranscript):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrAnalyzerUnavailable), errors.Is(err, tavus.ErrMissingAPIKey):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &upstreamErr):
		event := h.log.Error().Err(err)
		if errors.As(err, &apiErr) {
			event = event.Str("endpoint", apiErr.Endpoint).Int("upstream_status", apiErr.StatusCode)
		}
		event.Msg("upstream request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
