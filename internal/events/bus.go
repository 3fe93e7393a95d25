package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Session lifecycle event types.
const (
	TypeSessionCreated = "session.created"
	TypeCallStarted    = "call.started"
	TypeCallEnded      = "call.ended"
	TypeFeedbackReady  = "feedback.ready"
)

// Event represents a session lifecycle event.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Origin    string      `json:"origin,omitempty"`
}

// Bus multiplexes events to connected clients (local + Redis backed).
type Bus struct {
	client redis.UniversalClient
	logger zerolog.Logger
	ch     string
	origin string

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}

	stop    context.CancelFunc
	stopped chan struct{}
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  zerolog.Logger
	Channel string
}

// NewBus creates a new event bus. With a Redis client, events published by
// other instances on the same channel are delivered to local subscribers too.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "cvi-coach-events"
	}
	bus := &Bus{
		client:      opts.Client,
		logger:      opts.Logger,
		ch:          channel,
		origin:      uuid.NewString(),
		subscribers: make(map[chan Event]struct{}),
		stopped:     make(chan struct{}),
	}
	if bus.client != nil {
		ctx, cancel := context.WithCancel(context.Background())
		bus.stop = cancel
		ready := make(chan struct{})
		go bus.observeRedis(ctx, ready)
		<-ready
	} else {
		close(bus.stopped)
	}
	return bus
}

// Publish broadcasts an event to all local subscribers and Redis.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Origin = b.origin

	b.broadcast(evt)

	if b.client != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}

// Emit publishes an event built from typ and data, logging failures.
func (b *Bus) Emit(ctx context.Context, typ string, data interface{}) {
	if b == nil {
		return
	}
	if err := b.Publish(ctx, Event{Type: typ, Data: data}); err != nil {
		b.logger.Warn().Err(err).Str("type", typ).Msg("failed to publish event")
	}
}

// Subscribe registers a subscriber and returns a channel plus a cancel func.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// Subscribers returns the number of connected subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops the Redis observer.
func (b *Bus) Close() {
	if b.stop != nil {
		b.stop()
	}
	<-b.stopped
}

func (b *Bus) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Warn().Str("event_id", evt.ID).Msg("dropping event (subscriber backlog)")
		}
	}
}

func (b *Bus) observeRedis(ctx context.Context, ready chan<- struct{}) {
	defer close(b.stopped)

	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("redis subscribe confirmation failed")
	}
	close(ready)

	// Channel reconnects on its own; ctx only has to stop the loop.
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn().Err(err).Msg("invalid event payload")
				continue
			}
			if evt.Origin == b.origin {
				continue
			}
			b.broadcast(evt)
		}
	}
}
