package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/kvstore"
)

type searchFixture struct {
	clock   *fakeClock
	market  *stubMarketplace
	history *HistoryStore
	service *SearchService
}

func newSearchFixture(settings *staticSettings) *searchFixture {
	clock := newFakeClock()
	market := &stubMarketplace{listings: []domain.Listing{
		newListing("B0TEST0001", "Widget One", "$10.00", 10),
		newListing("B0TEST0002", "Widget Two", "$20.00", 20),
		newListing("B0TEST0003", "Widget Three", "$30.00", 30),
		newListing("B0TEST0004", "Widget Four", "$40.00", 40),
	}}
	history := NewHistoryStore(kvstore.NewMemoryStore(), settings, zap.NewNop(), WithHistoryClock(clock.Now))
	resultCache := cache.NewMemoryCache(cache.WithClock(clock.Now), cache.WithCleanupInterval(0), cache.WithName("search"))

	return &searchFixture{
		clock:   clock,
		market:  market,
		history: history,
		service: NewSearchService(market, resultCache, history, settings, SearchServiceConfig{}, zap.NewNop()),
	}
}

func TestSearchService_CachesForFiveMinutes(t *testing.T) {
	f := newSearchFixture(newStaticSettings())
	ctx := context.Background()

	first, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	f.clock.Advance(5*time.Minute - time.Second)
	second, err := f.service.Search(ctx, "  widget ", "us")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Listings, second.Listings)
	assert.Equal(t, 1, f.market.Calls())

	f.clock.Advance(2 * time.Second)
	third, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, f.market.Calls())
}

func TestSearchService_CacheIsPerRegion(t *testing.T) {
	f := newSearchFixture(newStaticSettings())
	ctx := context.Background()

	_, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)
	_, err = f.service.Search(ctx, "Widget", "DE")
	require.NoError(t, err)

	assert.Equal(t, 2, f.market.Calls())
}

func TestSearchService_RecordsTopResultsInHistory(t *testing.T) {
	f := newSearchFixture(newStaticSettings())
	ctx := context.Background()

	_, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)

	for _, id := range []string{"B0TEST0001", "B0TEST0002", "B0TEST0003"} {
		series, err := f.history.Get(ctx, id, domain.RegionUS)
		require.NoError(t, err, id)
		assert.Len(t, series.Points, 1)
	}
	_, err = f.history.Get(ctx, "B0TEST0004", domain.RegionUS)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A cache hit records nothing new
	_, err = f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)
	series, err := f.history.Get(ctx, "B0TEST0001", domain.RegionUS)
	require.NoError(t, err)
	assert.Len(t, series.Points, 1)
}

func TestSearchService_HistoryDisabled(t *testing.T) {
	f := newSearchFixture(newStaticSettings(func(s *domain.Settings) { s.HistoryEnabled = false }))
	ctx := context.Background()

	_, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)

	n, err := f.history.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchService_FailureIsNotCached(t *testing.T) {
	f := newSearchFixture(newStaticSettings())
	ctx := context.Background()
	f.market.err = &domain.SearchError{Kind: domain.KindRateLimited, StatusCode: 503, Attempts: 4}

	_, err := f.service.Search(ctx, "Widget", "US")
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	f.market.err = nil
	result, err := f.service.Search(ctx, "Widget", "US")
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, f.market.Calls())

	n, err := f.history.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearchService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		region string
	}{
		{name: "empty query", query: "   ", region: "US"},
		{name: "unknown region", query: "Widget", region: "XX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSearchFixture(newStaticSettings())

			_, err := f.service.Search(context.Background(), tt.query, tt.region)

			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Zero(t, f.market.Calls())
		})
	}
}

func TestSearchService_DefaultRegionFromSettings(t *testing.T) {
	f := newSearchFixture(newStaticSettings(func(s *domain.Settings) { s.Region = domain.RegionFR }))

	result, err := f.service.Search(context.Background(), "Widget", "")

	require.NoError(t, err)
	assert.Equal(t, domain.RegionFR, result.Region)
}

func TestSearchCacheKey(t *testing.T) {
	assert.Equal(t, "search:US:wireless mouse", searchCacheKey(domain.RegionUS, "  Wireless Mouse "))
}
