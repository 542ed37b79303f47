package repository

import (
	"context"
	"fmt"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/service/cache"
	"AnimaRex/internal/service/session"
)

// BrokerBarSource loads bars through whatever session the cell currently holds.
type BrokerBarSource struct {
	cell *session.Cell
	now  func() time.Time
}

func NewBrokerBarSource(cell *session.Cell) *BrokerBarSource {
	return &BrokerBarSource{cell: cell, now: time.Now}
}

func (s *BrokerBarSource) LatestBars(ctx context.Context, market string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, models.NewValidationError("n", "must be positive")
	}
	b, err := s.cell.Get()
	if err != nil {
		return nil, models.NewConnectivityError("bars", err)
	}
	now := s.now().UTC()
	since, until := tf.Align(now.Add(-time.Duration(n)*tf.Duration()), now)
	bars, err := b.FetchBars(ctx, market, tf, since, until)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("latest bars %s: %w", market, models.ErrNoData)
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// CachedBarSource serves repeated window requests from memory for ttl.
// Workers of different strategies on one market share the same window.
type CachedBarSource struct {
	next  domrepo.BarSource
	ttl   time.Duration
	cache *cache.TTLCache[[]models.Candle]
}

func NewCachedBarSource(next domrepo.BarSource, ttl time.Duration) *CachedBarSource {
	return &CachedBarSource{next: next, ttl: ttl, cache: cache.NewTTLCache[[]models.Candle]()}
}

func (s *CachedBarSource) LatestBars(ctx context.Context, market string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if s.ttl <= 0 {
		return s.next.LatestBars(ctx, market, n, tf)
	}
	key := fmt.Sprintf("%s|%s|%d", market, tf, n)
	if bars, ok := s.cache.Get(key); ok {
		return bars, nil
	}
	bars, err := s.next.LatestBars(ctx, market, n, tf)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, bars, s.ttl)
	return bars, nil
}
