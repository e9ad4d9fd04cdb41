package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voicecore/internal/commons"
)

// Store is the external key-value store contract from spec.md §6:
// get(call_id) -> snapshot|null, set(call_id, snapshot), refresh(call_id)
// -> bool.
type Store interface {
	// Get returns the persisted snapshot for callID, or (nil, nil) if
	// none exists. Reads are best-effort: if the backing store is
	// unreachable, the local fallback cache is consulted instead of
	// returning an error, per spec.md §3.
	Get(ctx context.Context, callID string) (*Snapshot, error)

	// Set persists snap, keyed by its CallID. Writes may be async from the
	// caller's perspective (see AsyncStore below); this method itself is
	// synchronous.
	Set(ctx context.Context, snap Snapshot) error

	// Refresh extends the TTL on callID's record, reporting whether a
	// record existed to refresh.
	Refresh(ctx context.Context, callID string) (bool, error)
}

const defaultTTL = 4 * time.Hour

// redisStore is the production Store, backed by redis/go-redis/v9. On
// any Redis error it falls back to a local in-process cache rather than
// failing the caller, matching spec.md §3: "reads are best-effort with a
// local fallback when the store is unreachable."
type redisStore struct {
	client *redis.Client
	logger commons.Logger
	ttl    time.Duration

	fallbackMu sync.RWMutex
	fallback   map[string]Snapshot
}

// NewRedisStore builds a Store backed by a redis.Client.
func NewRedisStore(client *redis.Client, logger commons.Logger) Store {
	return &redisStore{
		client:   client,
		logger:   logger,
		ttl:      defaultTTL,
		fallback: make(map[string]Snapshot),
	}
}

func redisKey(callID string) string { return "voicecore:call:" + callID }

func (s *redisStore) Get(ctx context.Context, callID string) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, redisKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return s.getFallback(callID)
		}
		s.logger.Warnw("memory store unreachable, using local fallback", "call_id", callID, "error", err)
		return s.getFallback(callID)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("memory: unmarshal snapshot for %s: %w", callID, err)
	}
	s.putFallback(snap)
	return &snap, nil
}

func (s *redisStore) getFallback(callID string) (*Snapshot, error) {
	s.fallbackMu.RLock()
	defer s.fallbackMu.RUnlock()
	snap, ok := s.fallback[callID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *redisStore) putFallback(snap Snapshot) {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	s.fallback[snap.CallID] = snap
}

func (s *redisStore) Set(ctx context.Context, snap Snapshot) error {
	s.putFallback(snap)

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("memory: marshal snapshot for %s: %w", snap.CallID, err)
	}
	if err := s.client.Set(ctx, redisKey(snap.CallID), raw, s.ttl).Err(); err != nil {
		s.logger.Warnw("memory store write failed, kept in local fallback only", "call_id", snap.CallID, "error", err)
		return nil
	}
	return nil
}

func (s *redisStore) Refresh(ctx context.Context, callID string) (bool, error) {
	ok, err := s.client.Expire(ctx, redisKey(callID), s.ttl).Result()
	if err != nil {
		s.logger.Warnw("memory store refresh failed", "call_id", callID, "error", err)
		return false, nil
	}
	return ok, nil
}

// AsyncStore wraps a Store so that Set calls return immediately and
// persist on a background goroutine, matching spec.md §3: "writes may be
// async." Errors from the background write are logged, never surfaced to
// the turn path.
type AsyncStore struct {
	inner  Store
	logger commons.Logger
}

// NewAsyncStore wraps inner for fire-and-forget writes.
func NewAsyncStore(inner Store, logger commons.Logger) *AsyncStore {
	return &AsyncStore{inner: inner, logger: logger}
}

// Get delegates synchronously — reads must observe the latest state.
func (a *AsyncStore) Get(ctx context.Context, callID string) (*Snapshot, error) {
	return a.inner.Get(ctx, callID)
}

// Set persists snap on a detached goroutine using a background context,
// since the caller's context may be cancelled (e.g. call teardown)
// before the write completes.
func (a *AsyncStore) Set(snap Snapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.inner.Set(ctx, snap); err != nil {
			a.logger.Warnw("async memory persist failed", "call_id", snap.CallID, "error", err)
		}
	}()
}

// Refresh delegates synchronously.
func (a *AsyncStore) Refresh(ctx context.Context, callID string) (bool, error) {
	return a.inner.Refresh(ctx, callID)
}
