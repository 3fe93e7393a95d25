package relay

import (
	"bytes"
	"encoding/json"
	"errors"
)

const (
	// Source identifies the upstream provider on forwarded envelopes.
	Source = "tavus"
	// EventTranscriptionReady is the only event type that is forwarded.
	EventTranscriptionReady = "application.transcription_ready"
)

var errInvalidJSON = errors.New("callback body is not valid JSON")

var emptyTranscript = json.RawMessage("[]")

// InboundCallback is a webhook callback as delivered by the provider. Fields
// are held as raw JSON so they can be forwarded exactly as received; a body
// that is valid JSON but not an object has no fields.
type InboundCallback struct {
	fields     map[string]json.RawMessage
	properties map[string]json.RawMessage
}

// ForwardEnvelope is the reshaped payload sent downstream. Fields absent
// from the callback are omitted; Transcript is always present.
type ForwardEnvelope struct {
	Source         string          `json:"source"`
	EventType      json.RawMessage `json:"event_type,omitempty"`
	MessageType    json.RawMessage `json:"message_type,omitempty"`
	ConversationID json.RawMessage `json:"conversation_id,omitempty"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	WebhookURL     json.RawMessage `json:"webhook_url,omitempty"`
	Transcript     json.RawMessage `json:"transcript"`
}

// ParseCallback decodes a callback body. Only syntactically invalid JSON is
// an error; field types are not checked.
func ParseCallback(body []byte) (*InboundCallback, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, errInvalidJSON
	}
	cb := &InboundCallback{}
	if trimmed[0] != '{' {
		return cb, nil
	}
	if err := json.Unmarshal(trimmed, &cb.fields); err != nil {
		return nil, err
	}
	// A properties value that is not an object carries no transcript.
	if raw, ok := cb.fields["properties"]; ok && isObject(raw) {
		if err := json.Unmarshal(raw, &cb.properties); err != nil {
			return nil, err
		}
	}
	return cb, nil
}

// Field returns the raw JSON of a top-level field, or nil when absent.
func (cb *InboundCallback) Field(name string) json.RawMessage {
	if cb == nil {
		return nil
	}
	return cb.fields[name]
}

// Text returns a top-level field for logging: the decoded value when it is
// a JSON string, its raw JSON otherwise.
func (cb *InboundCallback) Text(name string) string {
	raw := cb.Field(name)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// EventType returns event_type when it is a JSON string.
func (cb *InboundCallback) EventType() string {
	var s string
	if raw := cb.Field("event_type"); raw != nil {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	}
	return s
}

// Transcript returns properties.transcript as received, or [] when it is
// absent or null.
func (cb *InboundCallback) Transcript() json.RawMessage {
	if cb == nil {
		return emptyTranscript
	}
	raw, ok := cb.properties["transcript"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return emptyTranscript
	}
	return raw
}

// Turns counts transcript entries when the transcript is a list.
func (cb *InboundCallback) Turns() int {
	var turns []json.RawMessage
	if err := json.Unmarshal(cb.Transcript(), &turns); err != nil {
		return 0
	}
	return len(turns)
}

// Qualifies reports whether the callback should be forwarded.
func (cb *InboundCallback) Qualifies() bool {
	return cb != nil && cb.EventType() == EventTranscriptionReady
}

// NewForwardEnvelope reshapes an inbound callback for the downstream
// endpoint.
func NewForwardEnvelope(cb *InboundCallback) ForwardEnvelope {
	return ForwardEnvelope{
		Source:         Source,
		EventType:      cb.Field("event_type"),
		MessageType:    cb.Field("message_type"),
		ConversationID: cb.Field("conversation_id"),
		Timestamp:      cb.Field("timestamp"),
		WebhookURL:     cb.Field("webhook_url"),
		Transcript:     cb.Transcript(),
	}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
