package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store loads and saves session histories. A session never seen before
// loads as an empty History.
type Store interface {
	Load(ctx context.Context, session string) (History, error)
	Save(ctx context.Context, session string, h History) error
}

const keyPrefix = "studycal:history:"

// DefaultTTL expires idle sessions.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps one JSON document per session. A nil client turns the
// store into a no-op that always loads empty histories.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, session string) (History, error) {
	var h History
	if s.client == nil {
		return h, nil
	}
	raw, err := s.client.Get(ctx, keyPrefix+session).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return h, nil
		}
		return h, fmt.Errorf("redis get history %s: %w", session, err)
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return History{}, fmt.Errorf("decode history %s: %w", session, err)
	}
	return h, nil
}

func (s *RedisStore) Save(ctx context.Context, session string, h History) error {
	if s.client == nil {
		return nil
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", session, err)
	}
	if err := s.client.Set(ctx, keyPrefix+session, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set history %s: %w", session, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}}
}

// Load returns a deep copy so callers cannot alias stored stacks.
func (s *MemoryStore) Load(_ context.Context, session string) (History, error) {
	s.mu.Lock()
	raw, ok := s.sessions[session]
	s.mu.Unlock()

	var h History
	if !ok {
		return h, nil
	}
	err := json.Unmarshal(raw, &h)
	return h, err
}

func (s *MemoryStore) Save(_ context.Context, session string, h History) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[session] = raw
	s.mu.Unlock()
	return nil
}
