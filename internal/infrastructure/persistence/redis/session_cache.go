package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// SessionCache is a write-through snapshot cache in front of a
// training.SessionRepository. The store stays the source of truth; cache
// failures are logged and never fail the call.
type SessionCache struct {
	store  training.SessionRepository
	cache  *Cache
	logger *slog.Logger
}

// NewSessionCache wraps store with the Redis snapshot cache.
func NewSessionCache(store training.SessionRepository, cache *Cache, logger *slog.Logger) *SessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCache{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "session_cache"),
	}
}

// Save persists the session and refreshes its snapshot. A snapshot the
// store rejected as stale also evicts the cached copy.
func (c *SessionCache) Save(ctx context.Context, s *training.Session) error {
	if err := c.store.Save(ctx, s); err != nil {
		if errors.Is(err, shared.ErrStaleSession) {
			c.evict(ctx, s.ID)
		}
		return err
	}
	if err := c.cache.Set(ctx, SessionKey(s.ID), s, snapshotTTL(s)); err != nil {
		c.logger.Warn("failed to cache session snapshot", "session_id", s.ID, "error", err)
		_ = c.cache.Delete(ctx, SessionKey(s.ID))
	}
	return nil
}

// Annotate writes through to the store and evicts the snapshot.
func (c *SessionCache) Annotate(ctx context.Context, id, notes string, at time.Time) error {
	if err := c.store.Annotate(ctx, id, notes, at); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *SessionCache) evict(ctx context.Context, id string) {
	if err := c.cache.Delete(ctx, SessionKey(id)); err != nil {
		c.logger.Warn("failed to evict session snapshot", "session_id", id, "error", err)
	}
}

// GetByID serves from the snapshot when present.
func (c *SessionCache) GetByID(ctx context.Context, id string) (*training.Session, error) {
	var cached training.Session
	err := c.cache.Get(ctx, SessionKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("session snapshot read failed", "session_id", id, "error", err)
	}

	s, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, SessionKey(id), s, snapshotTTL(s)); err != nil {
		c.logger.Debug("failed to backfill session snapshot", "session_id", id, "error", err)
	}
	return s, nil
}

// FindRecent always reads the store.
func (c *SessionCache) FindRecent(ctx context.Context, q training.RecentQuery) ([]*training.Session, error) {
	return c.store.FindRecent(ctx, q)
}

// FindUnfinished always reads the store.
func (c *SessionCache) FindUnfinished(ctx context.Context) ([]*training.Session, error) {
	return c.store.FindUnfinished(ctx)
}

func snapshotTTL(s *training.Session) time.Duration {
	if s.Status.IsLive() {
		return TTLLiveSession
	}
	return TTLCompletedSession
}
