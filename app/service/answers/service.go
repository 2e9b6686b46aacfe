package answers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kaggle-runa/book-agent/app/client/redisclient"
	"github.com/Kaggle-runa/book-agent/app/config"

	"github.com/samber/do"
)

// Durable is the authoritative store of (asked count, answer map) per thread.
type Durable interface {
	Load(ctx context.Context, threadID string) (int, map[string]string, error)
	Store(ctx context.Context, threadID string, count int, answers map[string]string) error
	Delete(ctx context.Context, threadID string) error
}

// Service is the answer store: durable sqlite state with a best-effort
// cache mirror. Absence of state is a valid empty start, not an error.
type Service struct {
	durable Durable
	cache   Cache
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	db := do.MustInvoke[*sql.DB](di)

	var cache Cache = NoopCache{}
	if cfg.Redis.Addr != "" {
		client, err := redisclient.Conn(context.Background(), cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		cache = NewRedisCache(client)
	}

	return NewWithStores(NewSQLiteDurable(db), cache), nil
}

func NewWithStores(durable Durable, cache Cache) *Service {
	return &Service{
		durable: durable,
		cache:   cache,
	}
}

// Get returns the persisted progress counter and answer map. The durable
// store wins; the cache is consulted only when the durable read fails.
func (s *Service) Get(ctx context.Context, threadID string) (int, map[string]string, error) {
	count, answers, err := s.durable.Load(ctx, threadID)
	if err == nil {
		return count, answers, nil
	}

	slog.Warn("Durable read failed, falling back to cache",
		"thread_id", threadID,
		"error", err,
	)

	count, answers, cacheErr := s.cache.Load(ctx, threadID)
	if cacheErr == nil {
		return count, answers, nil
	}
	if !errors.Is(cacheErr, ErrCacheMiss) {
		slog.Warn("Cache fallback read failed",
			"thread_id", threadID,
			"error", cacheErr,
		)
	}

	// A failed durable read with no mirror is not the same as absence.
	return 0, nil, fmt.Errorf("load proposal state: %w", err)
}

// Put persists the pair and refreshes the cache mirror. Mirror failures are
// logged and swallowed.
func (s *Service) Put(ctx context.Context, threadID string, count int, answers map[string]string) error {
	if err := s.durable.Store(ctx, threadID, count, answers); err != nil {
		return fmt.Errorf("store proposal state: %w", err)
	}

	if err := s.cache.Store(ctx, threadID, count, answers); err != nil {
		slog.Warn("Cache mirror write failed",
			"thread_id", threadID,
			"error", err,
		)
	}

	return nil
}

// Clear resets the thread to its empty initial state.
func (s *Service) Clear(ctx context.Context, threadID string) error {
	if err := s.durable.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("clear proposal state: %w", err)
	}

	if err := s.cache.Drop(ctx, threadID); err != nil {
		slog.Warn("Cache mirror drop failed",
			"thread_id", threadID,
			"error", err,
		)
	}

	return nil
}
