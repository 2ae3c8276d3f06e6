package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

// VisionServiceConfig holds configuration for the vision batch processor
type VisionServiceConfig struct {
	BatchSize   int
	MaxCalls    int
	Window      time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

// VisionService classifies page images in rate-limited batches, caching every verdict
type VisionService struct {
	classifier domain.VisionClassifier
	cache      domain.CacheRepository
	settings   SettingsReader
	calls      *callWindow
	now        func() time.Time
	config     VisionServiceConfig
	logger     *zap.Logger
}

// VisionOption configures a VisionService
type VisionOption func(*VisionService)

// WithVisionClock replaces time.Now for the call window
func WithVisionClock(now func() time.Time) VisionOption {
	return func(s *VisionService) { s.now = now }
}

// NewVisionService creates a vision service that issues at most MaxCalls batch calls per Window
func NewVisionService(
	classifier domain.VisionClassifier,
	cache domain.CacheRepository,
	settings SettingsReader,
	config VisionServiceConfig,
	logger *zap.Logger,
	opts ...VisionOption,
) *VisionService {
	if config.BatchSize <= 0 {
		config.BatchSize = 3
	}
	if config.MaxCalls <= 0 {
		config.MaxCalls = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 30 * time.Minute
	}

	s := &VisionService{
		classifier: classifier,
		cache:      cache,
		settings:   settings,
		now:        time.Now,
		config:     config,
		logger:     logger.Named("vision"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calls = newCallWindow(config.MaxCalls, config.Window, s.now)
	return s
}

// Enabled reports whether vision detection is switched on and has an API key
func (s *VisionService) Enabled() bool {
	if s.settings == nil {
		return false
	}
	current := s.settings.Current()
	return current.VisionEnabled && current.VisionAPIKey != ""
}

// Classify returns product candidates for images. Cached verdicts are reused, the rest
// are sent in batches. A batch refused by the rate limiter or failing in transport is
// skipped and left uncached.
func (s *VisionService) Classify(ctx context.Context, images []domain.VisionImage) ([]domain.Candidate, error) {
	var current domain.Settings
	if s.settings != nil {
		current = s.settings.Current()
	}
	if !current.VisionEnabled {
		return nil, fmt.Errorf("%w: vision detection is disabled", domain.ErrConfiguration)
	}
	apiKey := current.VisionAPIKey
	if apiKey == "" {
		return nil, fmt.Errorf("%w: vision API key is not set", domain.ErrConfiguration)
	}

	images = uniqueImages(images)
	verdicts := make([]*domain.Classification, len(images))
	var pending []int

	for i, img := range images {
		cached, err := s.cache.Get(ctx, visionCacheKey(img.SourceURL))
		if err != nil {
			pending = append(pending, i)
			continue
		}
		if c, ok := cached.(*domain.Classification); ok {
			verdicts[i] = c
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for start := 0; start < len(pending); start += s.config.BatchSize {
		batch := pending[start:min(start+s.config.BatchSize, len(pending))]

		if !s.calls.Allow() {
			metrics.VisionBatches.WithLabelValues("dropped").Inc()
			s.logger.Warn("vision rate limit reached, dropping batch", zap.Int("images", len(batch)))
			continue
		}

		g.Go(func() error {
			batchImages := make([]domain.VisionImage, len(batch))
			for j, idx := range batch {
				batchImages[j] = images[idx]
			}

			results, err := s.classifier.ClassifyBatch(gctx, apiKey, batchImages)
			if err != nil {
				metrics.VisionBatches.WithLabelValues("error").Inc()
				s.logger.Warn("vision batch failed", zap.Int("images", len(batch)), zap.Error(err))
				return nil
			}
			if len(results) != len(batch) {
				metrics.VisionBatches.WithLabelValues("malformed").Inc()
				results = make([]*domain.Classification, len(batch))
			} else {
				metrics.VisionBatches.WithLabelValues("success").Inc()
			}

			for j, idx := range batch {
				if err := s.cache.Set(ctx, visionCacheKey(images[idx].SourceURL), results[j], s.config.CacheTTL); err != nil {
					s.logger.Warn("failed to cache classification", zap.String("url", images[idx].SourceURL), zap.Error(err))
				}
				mu.Lock()
				verdicts[idx] = results[j]
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.Candidate
	for _, v := range verdicts {
		if v == nil || !v.IsProduct || strings.TrimSpace(v.Name) == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Name:       strings.TrimSpace(v.Name),
			Brand:      strings.TrimSpace(v.Brand),
			Source:     domain.SourceVision,
			Confidence: confidenceVision,
		})
	}

	return MergeCandidates(candidates, current.MinConfidence), nil
}

// callWindow admits at most max calls per window. A window opens with the first call
// after the previous one has expired.
type callWindow struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	opened  time.Time
	allowed *rate.Limiter
}

func newCallWindow(limit int, window time.Duration, now func() time.Time) *callWindow {
	return &callWindow{max: limit, window: window, now: now}
}

// Allow takes one call from the current window and reports false when none are left
func (w *callWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.allowed == nil || now.Sub(w.opened) >= w.window {
		w.opened = now
		// A zero limit never refills, so the burst is the whole window's allowance
		w.allowed = rate.NewLimiter(0, w.max)
	}
	return w.allowed.AllowN(now, 1)
}

// uniqueImages drops repeats and images without a source URL, keeping first occurrences
func uniqueImages(images []domain.VisionImage) []domain.VisionImage {
	seen := make(map[string]bool, len(images))
	out := make([]domain.VisionImage, 0, len(images))
	for _, img := range images {
		if img.SourceURL == "" || seen[img.SourceURL] {
			continue
		}
		seen[img.SourceURL] = true
		out = append(out, img)
	}
	return out
}

// visionCacheKey hashes the image source with FNV-1a
func visionCacheKey(sourceURL string) string {
	h := fnv.New64a()
	h.Write([]byte(sourceURL))
	return fmt.Sprintf("vision:%x", h.Sum64())
}
