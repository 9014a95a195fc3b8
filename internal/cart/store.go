package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-apotek/internal/common"
)

// Store keeps at most one draft per session.
type Store interface {
	Get(ctx context.Context, sessionID string) (Draft, bool, error)
	Save(ctx context.Context, d Draft) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps drafts in process, keyed by session.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft)}
}

// Get returns a copy of the session's draft.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[sessionID]
	if !ok {
		return Draft{}, false, nil
	}
	return d.Clone(), true, nil
}

// Save stores a copy of d.
func (s *MemoryStore) Save(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drafts == nil {
		s.drafts = make(map[string]Draft)
	}
	s.drafts[d.SessionID] = d.Clone()
	return nil
}

// Delete removes the session's draft.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}

const draftKeyPrefix = "draft:"

// RedisStore keeps drafts as JSON with a sliding TTL so abandoned drafts expire.
type RedisStore struct {
	R   *redis.Client
	TTL time.Duration
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

// Get loads the session's draft.
func (s RedisStore) Get(ctx context.Context, sessionID string) (Draft, bool, error) {
	data, err := s.R.Get(ctx, draftKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Draft{}, false, nil
		}
		return Draft{}, false, common.Unavailable(fmt.Errorf("load draft: %w", err))
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, false, fmt.Errorf("decode draft: %w", err)
	}
	return d, true, nil
}

// Save writes the draft and refreshes its TTL.
func (s RedisStore) Save(ctx context.Context, d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.R.Set(ctx, draftKeyPrefix+d.SessionID, data, s.ttl()).Err(); err != nil {
		return common.Unavailable(fmt.Errorf("save draft: %w", err))
	}
	return nil
}

// Delete removes the session's draft.
func (s RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.R.Del(ctx, draftKeyPrefix+sessionID).Err(); err != nil {
		return common.Unavailable(fmt.Errorf("delete draft: %w", err))
	}
	return nil
}
