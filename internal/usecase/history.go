package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

const (
	// DefaultMaxPoints caps every series
	DefaultMaxPoints = 100

	// DefaultRetentionDays applies when settings carry no retention
	DefaultRetentionDays = 30
)

// HistoryStore keeps a bounded price series per (region, listing id)
type HistoryStore struct {
	store     domain.KeyValueStore
	settings  SettingsReader
	locks     *keyedMutex
	now       func() time.Time
	maxPoints int
	logger    *zap.Logger
}

// HistoryOption configures a HistoryStore
type HistoryOption func(*HistoryStore)

// WithHistoryClock replaces time.Now
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *HistoryStore) { h.now = now }
}

// WithMaxPoints overrides the per-series cap
func WithMaxPoints(n int) HistoryOption {
	return func(h *HistoryStore) {
		if n > 0 {
			h.maxPoints = n
		}
	}
}

// NewHistoryStore creates a history store. Retention is read from settings on every append.
func NewHistoryStore(store domain.KeyValueStore, settings SettingsReader, logger *zap.Logger, opts ...HistoryOption) *HistoryStore {
	h := &HistoryStore{
		store:     store,
		settings:  settings,
		locks:     newKeyedMutex(),
		now:       time.Now,
		maxPoints: DefaultMaxPoints,
		logger:    logger.Named("history"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Append records the listing's current price. Retention and the cap are applied in the
// same write, so readers never see a series that exceeds either.
func (h *HistoryStore) Append(ctx context.Context, listing domain.Listing, region domain.RegionCode) (*domain.HistorySeries, error) {
	if listing.ID == "" {
		return nil, fmt.Errorf("%w: listing has no identifier", domain.ErrInvalidRequest)
	}
	key := domain.SeriesKey(region, listing.ID)

	unlock := h.locks.Lock(key)
	defer unlock()

	series, err := h.load(ctx, key)
	created := false
	switch {
	case errors.Is(err, domain.ErrNotFound):
		series = &domain.HistorySeries{ID: listing.ID, Region: region}
		created = true
	case err != nil:
		return nil, err
	}
	if listing.Title != "" {
		series.Title = listing.Title
	}

	now := h.now()
	series.Points = append(series.Points, domain.PricePoint{
		DisplayPrice: listing.DisplayPrice,
		NumericPrice: listing.NumericPrice,
		Timestamp:    now,
	})
	series.Points = h.trim(series.Points, now)

	raw, err := json.Marshal(series)
	if err != nil {
		return nil, fmt.Errorf("encode history %s: %w", key, err)
	}
	if err := h.store.Set(ctx, domain.BucketHistory, key, raw); err != nil {
		return nil, fmt.Errorf("save history %s: %w", key, err)
	}
	if created {
		metrics.HistorySeries.Inc()
	}
	return series, nil
}

// Get returns the series for id in region, or ErrNotFound
func (h *HistoryStore) Get(ctx context.Context, id string, region domain.RegionCode) (*domain.HistorySeries, error) {
	return h.load(ctx, domain.SeriesKey(region, id))
}

// Clear drops every series
func (h *HistoryStore) Clear(ctx context.Context) error {
	if err := h.store.DeleteBucket(ctx, domain.BucketHistory); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	metrics.HistorySeries.Set(0)
	h.logger.Info("history cleared")
	return nil
}

// Count returns the number of stored series
func (h *HistoryStore) Count(ctx context.Context) (int, error) {
	all, err := h.store.List(ctx, domain.BucketHistory)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	metrics.HistorySeries.Set(float64(len(all)))
	return len(all), nil
}

func (h *HistoryStore) load(ctx context.Context, key string) (*domain.HistorySeries, error) {
	raw, err := h.store.Get(ctx, domain.BucketHistory, key)
	if err != nil {
		return nil, err
	}
	var series domain.HistorySeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", key, err)
	}
	return &series, nil
}

// trim drops points older than the retention window, then keeps the newest maxPoints
func (h *HistoryStore) trim(points []domain.PricePoint, now time.Time) []domain.PricePoint {
	days := DefaultRetentionDays
	if h.settings != nil {
		if d := h.settings.Current().HistoryRetentionDays; d > 0 {
			days = d
		}
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	kept := points[:0]
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	if len(kept) > h.maxPoints {
		kept = kept[len(kept)-h.maxPoints:]
	}
	return kept
}
