// Package relay receives provider webhook callbacks and forwards
// transcription-ready events to the downstream automation endpoint.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-cvi-coach/internal/api"
	"github.com/oremus-labs/ol-cvi-coach/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrForwardingDisabled is returned by Forward when no downstream URL is set.
var ErrForwardingDisabled = errors.New("forwarding disabled")

// Poster delivers a JSON payload downstream.
type Poster interface {
	Enabled() bool
	Post(ctx context.Context, payload interface{}) error
}

// Options configures a Relay.
type Options struct {
	// Route is the only path accepted; defaults to /tavus/webhook.
	Route      string
	Downstream Poster
	Logger     zerolog.Logger
}

// Relay is a stateless webhook relay. Its fields are fixed at construction.
type Relay struct {
	route      string
	downstream Poster
	log        zerolog.Logger
}

// New builds a Relay.
func New(opts Options) *Relay {
	route := opts.Route
	if route == "" {
		route = "/tavus/webhook"
	}
	r := &Relay{
		route:      route,
		downstream: opts.Downstream,
		log:        opts.Logger,
	}
	if !r.forwardingEnabled() {
		r.log.Warn().Msg("downstream webhook URL is not set; callbacks will be acknowledged but nothing will be forwarded")
	}
	return r
}

// Route returns the configured callback path.
func (r *Relay) Route() string {
	return r.route
}

// Router returns the gin engine serving the callback route. Every other
// method or path answers 404.
func (r *Relay) Router() *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = false
	engine.Use(
		gin.CustomRecoveryWithWriter(io.Discard, r.recoverPanic),
		api.RequestID(),
		api.Metrics("relay"),
		api.RequestLogger(r.log),
	)
	engine.POST(r.route, r.HandleCallback)
	engine.NoRoute(notFound)
	engine.NoMethod(notFound)
	return engine
}

// Server wraps the router in an http.Server. WriteTimeout is left unset
// because the acknowledgement is written after the forward attempt, which
// carries no deadline of its own.
func (r *Relay) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// HandleCallback accepts a provider callback, forwards it when it is a
// transcription-ready event and always acknowledges success once the body
// parsed.
func (r *Relay) HandleCallback(c *gin.Context) {
	logger := r.requestLogger(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read callback body")
		metrics.ObserveCallback("error")
		internalError(c)
		return
	}

	cb, err := ParseCallback(body)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to parse callback body")
		metrics.ObserveCallback("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	logger.Info().
		Str("event_type", cb.Text("event_type")).
		Str("message_type", cb.Text("message_type")).
		Str("conversation_id", cb.Text("conversation_id")).
		Str("timestamp", cb.Text("timestamp")).
		Msg("received provider callback")

	if cb.Qualifies() {
		logger.Info().
			Str("conversation_id", cb.Text("conversation_id")).
			Int("turns", cb.Turns()).
			Msg("transcript ready")
		// Detached from the inbound request so a provider hang-up does not
		// cancel the forward.
		r.attemptForward(context.WithoutCancel(c.Request.Context()), NewForwardEnvelope(cb), logger)
		metrics.ObserveCallback("forwarded")
	} else {
		metrics.ObserveCallback("skipped")
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Forward sends env to the downstream endpoint once, without retry.
func (r *Relay) Forward(ctx context.Context, env ForwardEnvelope) error {
	if !r.forwardingEnabled() {
		return ErrForwardingDisabled
	}
	return r.downstream.Post(ctx, env)
}

// attemptForward calls Forward, logs the outcome and discards it. Forward
// failures never reach the provider.
func (r *Relay) attemptForward(ctx context.Context, env ForwardEnvelope, logger zerolog.Logger) {
	start := time.Now()
	err := r.Forward(ctx, env)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrForwardingDisabled):
		metrics.ObserveForward(metrics.ForwardDisabled, elapsed)
		logger.Debug().RawJSON("conversation_id", rawOrNull(env.ConversationID)).Msg("forwarding disabled, skipping")
	case err != nil:
		metrics.ObserveForward(metrics.ForwardFailed, elapsed)
		logger.Error().Err(err).RawJSON("conversation_id", rawOrNull(env.ConversationID)).Dur("latency", elapsed).Msg("failed to forward transcript")
	default:
		metrics.ObserveForward(metrics.ForwardSuccess, elapsed)
		logger.Info().RawJSON("conversation_id", rawOrNull(env.ConversationID)).Dur("latency", elapsed).Msg("forwarded transcript")
	}
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func (r *Relay) forwardingEnabled() bool {
	return r.downstream != nil && r.downstream.Enabled()
}

func (r *Relay) requestLogger(c *gin.Context) zerolog.Logger {
	if id, ok := c.Get(api.RequestIDKey); ok {
		return r.log.With().Interface("request_id", id).Logger()
	}
	return r.log
}

func (r *Relay) recoverPanic(c *gin.Context, recovered interface{}) {
	r.log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("panic while handling callback")
	internalError(c)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

func internalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
