// Package session runs the coaching flow: signup, a video call with the
// manager persona, and feedback on the call.
package session

import (
	"errors"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
)

// Status is the stage a session has reached.
type Status string

const (
	StatusCreated       Status = "created"
	StatusInCall        Status = "in_call"
	StatusEnded         Status = "ended"
	StatusFeedbackReady Status = "feedback_ready"
)

var (
	ErrNotFound            = errors.New("session not found")
	ErrNoConversation      = errors.New("session has no conversation")
	ErrEmptyTranscript     = errors.New("transcript is empty")
	ErrAnalyzerUnavailable = errors.New("feedback analyzer not configured")
)

// UpstreamError wraps a failure of the video provider or the feedback
// analyzer.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Session is the ephemeral state of one coaching run.
type Session struct {
	ID              string              `json:"id"`
	Profile         persona.UserProfile `json:"profile"`
	ScenarioKey     string              `json:"scenario_key"`
	PersonaID       string              `json:"persona_id,omitempty"`
	ConversationID  string              `json:"conversation_id,omitempty"`
	ConversationURL string              `json:"conversation_url,omitempty"`
	Status          Status              `json:"status"`
	Transcript      []feedback.Message  `json:"transcript,omitempty"`
	Tips            []feedback.Tip      `json:"tips,omitempty"`
	EmailSent       bool                `json:"email_sent,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Transcript = append([]feedback.Message(nil), s.Transcript...)
	out.Tips = append([]feedback.Tip(nil), s.Tips...)
	return &out
}

// CallEndedNotice is sent downstream when a participant leaves a call.
type CallEndedNotice struct {
	Source         string     `json:"source"`
	EventType      string     `json:"event_type"`
	ConversationID string     `json:"conversation_id"`
	Timestamp      string     `json:"timestamp"`
	User           NoticeUser `json:"user"`
}

type NoticeUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// FeedbackNotice carries generated tips downstream for delivery by email.
type FeedbackNotice struct {
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Transcript string         `json:"transcript"`
	Feedback   []feedback.Tip `json:"feedback"`
}

// FeedbackResult is returned by Service.Feedback.
type FeedbackResult struct {
	Tips      []feedback.Tip `json:"tips"`
	EmailSent bool           `json:"email_sent"`
}
