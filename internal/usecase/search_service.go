package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	CacheTTL  time.Duration
	PerSearch int
}

// SearchService runs marketplace searches through the result cache and records history
type SearchService struct {
	client    domain.MarketplaceClient
	cache     domain.CacheRepository
	history   *HistoryStore
	settings  SettingsReader
	cacheTTL  time.Duration
	perSearch int
	logger    *zap.Logger
}

// NewSearchService creates a search service. history may be nil.
func NewSearchService(
	client domain.MarketplaceClient,
	cache domain.CacheRepository,
	history *HistoryStore,
	settings SettingsReader,
	config SearchServiceConfig,
	logger *zap.Logger,
) *SearchService {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	perSearch := config.PerSearch
	if perSearch <= 0 {
		perSearch = 3
	}

	return &SearchService{
		client:    client,
		cache:     cache,
		history:   history,
		settings:  settings,
		cacheTTL:  cacheTTL,
		perSearch: perSearch,
		logger:    logger.Named("search"),
	}
}

// Search returns listings for query in region. An empty region uses the settings region.
// Flow: check cache -> query marketplace -> cache -> record history -> return
func (s *SearchService) Search(ctx context.Context, query, region string) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidRequest)
	}

	r, err := s.resolveRegion(region)
	if err != nil {
		return nil, err
	}

	cacheKey := searchCacheKey(r.Code, query)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		if listings, ok := cached.([]domain.Listing); ok {
			s.logger.Debug("search cache hit", zap.String("key", cacheKey))
			return &domain.SearchResult{Query: query, Region: r.Code, Listings: listings, Cached: true}, nil
		}
	}

	listings, err := s.client.Search(ctx, query, r)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, listings, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache search results", zap.String("key", cacheKey), zap.Error(err))
	}
	s.recordHistory(ctx, listings, r.Code)

	return &domain.SearchResult{Query: query, Region: r.Code, Listings: listings}, nil
}

func (s *SearchService) resolveRegion(region string) (domain.Region, error) {
	if strings.TrimSpace(region) == "" && s.settings != nil {
		region = string(s.settings.Current().Region)
	}
	if strings.TrimSpace(region) == "" {
		region = string(domain.RegionUS)
	}
	r, err := domain.LookupRegion(region)
	if err != nil {
		return domain.Region{}, fmt.Errorf("%w: region %q: %v", domain.ErrInvalidRequest, region, err)
	}
	return r, nil
}

// recordHistory appends the top results to their price series
func (s *SearchService) recordHistory(ctx context.Context, listings []domain.Listing, region domain.RegionCode) {
	if s.history == nil || (s.settings != nil && !s.settings.Current().HistoryEnabled) {
		return
	}
	for i, l := range listings {
		if i >= s.perSearch {
			break
		}
		if _, err := s.history.Append(ctx, l, region); err != nil {
			s.logger.Warn("failed to record price history", zap.String("id", l.ID), zap.Error(err))
		}
	}
}

// searchCacheKey is "search:{region}:{lowercase query}"
func searchCacheKey(region domain.RegionCode, query string) string {
	return fmt.Sprintf("search:%s:%s", region, strings.ToLower(strings.TrimSpace(query)))
}
