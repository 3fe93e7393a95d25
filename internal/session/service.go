package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/ol-cvi-coach/internal/events"
	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/metrics"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
	"github.com/oremus-labs/ol-cvi-coach/internal/tavus"
	"github.com/oremus-labs/ol-cvi-coach/internal/validator"
	"github.com/rs/zerolog"
)

// Scenarios resolves scenario keys.
type Scenarios interface {
	Get(key string) (persona.Scenario, error)
}

// Provider creates personas and conversations on the video platform.
type Provider interface {
	CreatePersona(ctx context.Context, payload persona.Payload) (*tavus.PersonaResponse, error)
	CreateConversation(ctx context.Context, personaID, replicaID string) (*tavus.ConversationResponse, error)
}

// Records persists persona reuse records and the audit history.
type Records interface {
	FindPersona(scenarioKey, promptHash string) (*store.PersonaRecord, error)
	SavePersona(rec *store.PersonaRecord) error
	AppendHistory(entry *store.HistoryEntry) error
}

// Notifier posts JSON to the downstream workflow.
type Notifier interface {
	Enabled() bool
	Post(ctx context.Context, payload interface{}) error
}

// Options wires a Service. Records, Notifier, Analyzer and Events are
// optional.
type Options struct {
	Store     Store
	Scenarios Scenarios
	Provider  Provider
	Records   Records
	Notifier  Notifier
	Analyzer  feedback.Analyzer
	Events    *events.Bus
	ReplicaID string
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service implements the session flow.
type Service struct {
	store     Store
	scenarios Scenarios
	provider  Provider
	records   Records
	notifier  Notifier
	analyzer  feedback.Analyzer
	events    *events.Bus
	replicaID string
	log       zerolog.Logger
	now       func() time.Time
	// inflight guards the read-modify-save of one session.
	inflight *keyedMutex
}

// NewService builds a Service.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     opts.Store,
		scenarios: opts.Scenarios,
		provider:  opts.Provider,
		records:   opts.Records,
		notifier:  opts.Notifier,
		analyzer:  opts.Analyzer,
		events:    opts.Events,
		replicaID: opts.ReplicaID,
		log:       opts.Logger,
		now:       now,
		inflight:  newKeyedMutex(),
	}
}

// AnalyzerEnabled reports whether Feedback can run.
func (s *Service) AnalyzerEnabled() bool {
	return s.analyzer != nil
}

// Signup validates the profile and opens a new session.
func (s *Service) Signup(ctx context.Context, profile persona.UserProfile, scenarioKey string) (*Session, error) {
	if err := validator.ValidateProfile(profile); err != nil {
		return nil, err
	}
	scenario, err := s.scenarios.Get(scenarioKey)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &Session{
		ID:          uuid.NewString(),
		Profile:     profile,
		ScenarioKey: scenario.Key,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	metrics.ObserveSessionStage(string(StatusCreated))
	s.events.Emit(ctx, events.TypeSessionCreated, map[string]string{"session_id": sess.ID, "scenario": sess.ScenarioKey})
	s.log.Info().Str("session_id", sess.ID).Str("scenario", sess.ScenarioKey).Msg("session created")
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// StartCall creates (or reuses) the persona for the session's scenario and
// profile and opens a conversation. A session already in a call is
// returned unchanged. Concurrent calls for one session are serialised, so
// only the first opens a conversation.
func (s *Service) StartCall(ctx context.Context, id string) (*Session, error) {
	defer s.inflight.Lock(id)()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusInCall && sess.ConversationURL != "" {
		return sess, nil
	}

	scenario, err := s.scenarios.Get(sess.ScenarioKey)
	if err != nil {
		return nil, err
	}
	prompt := persona.BuildSystemPrompt(scenario, &sess.Profile)

	personaID, err := s.resolvePersona(ctx, sess, scenario, prompt)
	if err != nil {
		return nil, &UpstreamError{Op: "failed to create persona", Err: err}
	}

	conv, err := s.provider.CreateConversation(ctx, personaID, s.replicaID)
	if err != nil {
		return nil, &UpstreamError{Op: "failed to create conversation", Err: err}
	}

	sess.PersonaID = personaID
	sess.ConversationID = conv.ConversationID
	sess.ConversationURL = conv.ConversationURL
	sess.Status = StatusInCall
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.appendHistory(store.EventConversationCreated, sess.ID, map[string]interface{}{
		"persona_id":      personaID,
		"conversation_id": conv.ConversationID,
	})
	metrics.ObserveSessionStage(string(StatusInCall))
	// The join URL stays out of the stream; only the session owner gets it.
	s.events.Emit(ctx, events.TypeCallStarted, map[string]string{
		"session_id":      sess.ID,
		"conversation_id": sess.ConversationID,
	})
	s.log.Info().Str("session_id", sess.ID).Str("conversation_id", sess.ConversationID).Msg("call started")
	return sess, nil
}

func (s *Service) resolvePersona(ctx context.Context, sess *Session, scenario persona.Scenario, prompt string) (string, error) {
	hash := persona.PromptHash(prompt)
	if s.records != nil {
		rec, err := s.records.FindPersona(scenario.Key, hash)
		switch {
		case err == nil:
			s.log.Debug().Str("persona_id", rec.PersonaID).Msg("reusing persona")
			return rec.PersonaID, nil
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn().Err(err).Msg("persona lookup failed; creating a new persona")
		}
	}

	resp, err := s.provider.CreatePersona(ctx, persona.BuildPayload(scenario, prompt))
	if err != nil {
		return "", err
	}
	if s.records != nil {
		if err := s.records.SavePersona(&store.PersonaRecord{
			ScenarioKey: scenario.Key,
			PromptHash:  hash,
			PersonaID:   resp.PersonaID,
		}); err != nil {
			s.log.Warn().Err(err).Str("persona_id", resp.PersonaID).Msg("failed to record persona")
		}
	}
	s.appendHistory(store.EventPersonaCreated, sess.ID, map[string]interface{}{
		"persona_id": resp.PersonaID,
		"scenario":   scenario.Key,
	})
	return resp.PersonaID, nil
}

// EndCall records the transcript (when given), marks the call ended and
// notifies the downstream workflow. Notification failures are logged only.
func (s *Service) EndCall(ctx context.Context, id string, transcript []feedback.Message) (*Session, error) {
	defer s.inflight.Lock(id)()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.ConversationID == "" {
		return nil, ErrNoConversation
	}

	if len(transcript) > 0 {
		sess.Transcript = transcript
	}
	now := s.now().UTC()
	sess.Status = StatusEnded
	sess.UpdatedAt = now
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	notice := CallEndedNotice{
		Source:         "tavus",
		EventType:      "call.ended",
		ConversationID: sess.ConversationID,
		Timestamp:      now.Format("2006-01-02T15:04:05.000Z07:00"),
		User: NoticeUser{
			Name:  sess.Profile.Name,
			Email: sess.Profile.Email,
			Role:  sess.Profile.Role,
		},
	}
	sent := s.notify(ctx, notice, sess.ID, "call ended")

	s.appendHistory(store.EventCallEnded, sess.ID, map[string]interface{}{
		"conversation_id": sess.ConversationID,
		"turns":           len(sess.Transcript),
		"notified":        sent,
	})
	metrics.ObserveSessionStage(string(StatusEnded))
	s.events.Emit(ctx, events.TypeCallEnded, map[string]string{
		"session_id":      sess.ID,
		"conversation_id": sess.ConversationID,
	})
	return sess, nil
}

// Feedback generates tips for the given transcript, or the stored one when
// none is given, and forwards them downstream for delivery.
func (s *Service) Feedback(ctx context.Context, id string, transcript []feedback.Message) (*FeedbackResult, error) {
	defer s.inflight.Lock(id)()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.analyzer == nil {
		return nil, ErrAnalyzerUnavailable
	}
	if len(transcript) == 0 {
		transcript = sess.Transcript
	}
	if len(transcript) == 0 {
		return nil, ErrEmptyTranscript
	}

	rendered := feedback.RenderTranscript(transcript)
	tips, err := s.analyzer.Analyze(ctx, rendered)
	if err != nil {
		return nil, &UpstreamError{Op: "failed to generate feedback", Err: err}
	}

	sent := s.notify(ctx, FeedbackNotice{
		Email:      sess.Profile.Email,
		Name:       sess.Profile.Name,
		Transcript: rendered,
		Feedback:   tips,
	}, sess.ID, "feedback")

	sess.Transcript = transcript
	sess.Tips = tips
	sess.EmailSent = sent
	sess.Status = StatusFeedbackReady
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.appendHistory(store.EventFeedbackSent, sess.ID, map[string]interface{}{
		"tips":       len(tips),
		"email_sent": sent,
	})
	metrics.ObserveSessionStage(string(StatusFeedbackReady))
	s.events.Emit(ctx, events.TypeFeedbackReady, map[string]interface{}{
		"session_id": sess.ID,
		"tips":       len(tips),
		"email_sent": sent,
	})
	return &FeedbackResult{Tips: tips, EmailSent: sent}, nil
}

func (s *Service) notify(ctx context.Context, payload interface{}, sessionID, what string) bool {
	if s.notifier == nil || !s.notifier.Enabled() {
		s.log.Info().Str("session_id", sessionID).Msgf("downstream webhook not configured; skipping %s notification", what)
		return false
	}
	if err := s.notifier.Post(context.WithoutCancel(ctx), payload); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msgf("failed to send %s notification", what)
		return false
	}
	return true
}

func (s *Service) appendHistory(event, sessionID string, metadata map[string]interface{}) {
	if s.records == nil {
		return
	}
	if err := s.records.AppendHistory(&store.HistoryEntry{
		Event:     event,
		SessionID: sessionID,
		Metadata:  metadata,
	}); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("failed to append history")
	}
}
