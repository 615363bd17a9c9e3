package repository

import (
	"context"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/pkg/cache"
	applogger "Conductor/pkg/logger"
)

const (
	intentKeyPrefix = "intent"
	latestIntentKey = "intent:latest"
)

// CachedIntentStore decorates an IntentStore with a read-through cache for
// Get and Latest. Save writes through and refreshes the latest pointer.
type CachedIntentStore struct {
	next  domrepo.IntentStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedIntentStore(next domrepo.IntentStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedIntentStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedIntentStore{next: next, cache: c, ttl: ttl, l: l}
}

func (s *CachedIntentStore) Save(ctx context.Context, intent models.PortfolioIntent) error {
	if err := s.next.Save(ctx, intent); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(intentKeyPrefix, intent.IntentID), intent, s.ttl); err != nil {
		s.l.Warn("intent cache set failed", applogger.String("intent_id", intent.IntentID), applogger.Error(err))
	}
	// the newest as_of may not be this intent; let the next Latest reload it
	if err := s.cache.Delete(ctx, latestIntentKey); err != nil {
		s.l.Warn("intent cache invalidate failed", applogger.Error(err))
	}
	return nil
}

func (s *CachedIntentStore) Get(ctx context.Context, intentID string) (models.PortfolioIntent, error) {
	return s.readThrough(ctx, cache.GenerateKey(intentKeyPrefix, intentID), func() (models.PortfolioIntent, error) {
		return s.next.Get(ctx, intentID)
	})
}

func (s *CachedIntentStore) Latest(ctx context.Context) (models.PortfolioIntent, error) {
	return s.readThrough(ctx, latestIntentKey, func() (models.PortfolioIntent, error) {
		return s.next.Latest(ctx)
	})
}

// List is not cached.
func (s *CachedIntentStore) List(ctx context.Context, limit int) ([]models.PortfolioIntent, error) {
	return s.next.List(ctx, limit)
}

func (s *CachedIntentStore) readThrough(ctx context.Context, key string, load func() (models.PortfolioIntent, error)) (models.PortfolioIntent, error) {
	var intent models.PortfolioIntent
	if err := s.cache.Get(ctx, key, &intent); err == nil {
		return intent, nil
	}
	intent, err := load()
	if err != nil {
		return models.PortfolioIntent{}, err
	}
	if err := s.cache.Set(ctx, key, intent, s.ttl); err != nil {
		s.l.Warn("intent cache set failed", applogger.String("key", key), applogger.Error(err))
	}
	return intent, nil
}
