package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps sessions until they expire.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Sweeper is implemented by stores that need explicit expiry.
type Sweeper interface {
	Sweep(now time.Time) int
}

type memoryEntry struct {
	session *Session
	expires time.Time
}

// MemoryStore is an in-process Store. Every Save extends the expiry.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]memoryEntry
}

// NewMemoryStore returns a store whose entries live for ttl after their last
// save.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.ttl > 0 && !m.now().Before(entry.expires) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	return entry.session.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{session: s.clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, entry := range m.sessions {
		if !now.Before(entry.expires) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of held sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RedisStore keeps sessions as JSON strings with a Redis TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore returns a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "cvi-coach:session:"}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session id required")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
