package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
)

// stubClassifier records batches and answers through fn
type stubClassifier struct {
	mu      sync.Mutex
	batches [][]string
	fn      func(images []domain.VisionImage) ([]*domain.Classification, error)
}

func (c *stubClassifier) ClassifyBatch(ctx context.Context, apiKey string, images []domain.VisionImage) ([]*domain.Classification, error) {
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.SourceURL
	}
	c.mu.Lock()
	c.batches = append(c.batches, urls)
	c.mu.Unlock()
	return c.fn(images)
}

func (c *stubClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// productsNamedAfterURL says every image is a product named after its URL
func productsNamedAfterURL(images []domain.VisionImage) ([]*domain.Classification, error) {
	out := make([]*domain.Classification, len(images))
	for i, img := range images {
		out[i] = &domain.Classification{IsProduct: true, Name: "Product " + img.SourceURL}
	}
	return out, nil
}

func testImages(urls ...string) []domain.VisionImage {
	out := make([]domain.VisionImage, len(urls))
	for i, u := range urls {
		out[i] = domain.VisionImage{SourceURL: u, Base64: "aGVsbG8=", MimeType: "image/jpeg"}
	}
	return out
}

type visionFixture struct {
	clock      *fakeClock
	classifier *stubClassifier
	service    *VisionService
}

func newVisionFixture(settings *staticSettings, config VisionServiceConfig, fn func([]domain.VisionImage) ([]*domain.Classification, error)) *visionFixture {
	clock := newFakeClock()
	classifier := &stubClassifier{fn: fn}
	verdicts := cache.NewMemoryCache(cache.WithClock(clock.Now), cache.WithCleanupInterval(0), cache.WithName("vision"))
	return &visionFixture{
		clock:      clock,
		classifier: classifier,
		service:    NewVisionService(classifier, verdicts, settings, config, zap.NewNop(), WithVisionClock(clock.Now)),
	}
}

func TestVisionService_RequiresAPIKey(t *testing.T) {
	f := newVisionFixture(newStaticSettings(func(s *domain.Settings) { s.VisionAPIKey = "" }), VisionServiceConfig{}, productsNamedAfterURL)

	_, err := f.service.Classify(context.Background(), testImages("a.jpg"))

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, f.classifier.Calls())
}

func TestVisionService_CachesVerdicts(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, productsNamedAfterURL)
	ctx := context.Background()

	first, err := f.service.Classify(ctx, testImages("a.jpg"))
	require.NoError(t, err)
	f.clock.Advance(29 * time.Minute)
	second, err := f.service.Classify(ctx, testImages("a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.classifier.Calls())
	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.Equal(t, domain.Candidate{Name: "Product a.jpg", Source: domain.SourceVision, Confidence: 0.8}, first[0])

	f.clock.Advance(time.Minute + time.Second)
	_, err = f.service.Classify(ctx, testImages("a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.classifier.Calls())
}

func TestVisionService_NegativeIsNotRetried(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, func(images []domain.VisionImage) ([]*domain.Classification, error) {
		return []*domain.Classification{nil}, nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := f.service.Classify(ctx, testImages("logo-free-photo.jpg"))
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	assert.Equal(t, 1, f.classifier.Calls())
}

func TestVisionService_BatchesOfThree(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{Concurrency: 2}, productsNamedAfterURL)

	_, err := f.service.Classify(context.Background(), testImages("1", "2", "3", "4", "5", "6", "7", "1"))
	require.NoError(t, err)

	require.Equal(t, 3, f.classifier.Calls())
	sizes := map[int]int{}
	for _, b := range f.classifier.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{3: 2, 1: 1}, sizes)
}

func TestVisionService_CandidatesAreMerged(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, func(images []domain.VisionImage) ([]*domain.Classification, error) {
		return []*domain.Classification{
			{IsProduct: true, Name: "Acme Anvil", Brand: "Acme"},
			{IsProduct: true, Name: "acme-anvil"},
			{IsProduct: false, Name: "Sky"},
		}, nil
	})

	got, err := f.service.Classify(context.Background(), testImages("a", "b", "c"))

	require.NoError(t, err)
	assert.Equal(t, []domain.Candidate{{Name: "Acme Anvil", Brand: "Acme", Source: domain.SourceVision, Confidence: 0.8}}, got)
}

func TestVisionService_RateLimitDropsBatches(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{MaxCalls: 1, Window: time.Hour}, productsNamedAfterURL)
	ctx := context.Background()

	got, err := f.service.Classify(ctx, testImages("1", "2", "3", "4"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.classifier.Calls())
	assert.Len(t, got, 3)

	// The dropped image was not cached, so it is sent again once the limiter allows it
	_, err = f.service.Classify(ctx, testImages("4"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.classifier.Calls(), "limiter is still exhausted")
}

func TestVisionService_CallWindow(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{BatchSize: 1, MaxCalls: 10, Window: time.Minute}, productsNamedAfterURL)
	ctx := context.Background()

	// One new image every 100ms for a full minute
	for i := 0; i < 600; i++ {
		_, err := f.service.Classify(ctx, testImages(fmt.Sprintf("img-%d", i)))
		require.NoError(t, err)
		f.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 10, f.classifier.Calls(), "at most MaxCalls inside one window")

	// The next window opens once the first has fully elapsed
	_, err := f.service.Classify(ctx, testImages("next-window"))
	require.NoError(t, err)
	assert.Equal(t, 11, f.classifier.Calls())
}

func TestCallWindow(t *testing.T) {
	clock := newFakeClock()
	w := newCallWindow(2, time.Minute, clock.Now)

	assert.True(t, w.Allow())
	clock.Advance(59 * time.Second)
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())

	clock.Advance(time.Second)
	assert.True(t, w.Allow(), "a new window opens after a full minute")
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())
}

func TestVisionService_DisabledMakesNoCalls(t *testing.T) {
	f := newVisionFixture(newStaticSettings(func(s *domain.Settings) { s.VisionEnabled = false }), VisionServiceConfig{}, productsNamedAfterURL)

	got, err := f.service.Classify(context.Background(), testImages("a.jpg"))

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, got)
	assert.Zero(t, f.classifier.Calls())
	assert.False(t, f.service.Enabled())
}

func TestVisionService_Enabled(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Settings)
		want   bool
	}{
		{name: "enabled with key", mutate: func(s *domain.Settings) {}, want: true},
		{name: "switched off", mutate: func(s *domain.Settings) { s.VisionEnabled = false }, want: false},
		{name: "no key", mutate: func(s *domain.Settings) { s.VisionAPIKey = "" }, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVisionFixture(newStaticSettings(tt.mutate), VisionServiceConfig{}, productsNamedAfterURL)
			assert.Equal(t, tt.want, f.service.Enabled())
		})
	}
}

func TestVisionService_TransportErrorIsNotCached(t *testing.T) {
	fail := true
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, func(images []domain.VisionImage) ([]*domain.Classification, error) {
		if fail {
			return nil, fmt.Errorf("%w: connection reset", domain.ErrNetwork)
		}
		return productsNamedAfterURL(images)
	})
	ctx := context.Background()

	got, err := f.service.Classify(ctx, testImages("a"))
	require.NoError(t, err)
	assert.Empty(t, got)

	fail = false
	got, err = f.service.Classify(ctx, testImages("a"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, f.classifier.Calls())
}

func TestVisionService_MalformedBatchIsNegative(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, func(images []domain.VisionImage) ([]*domain.Classification, error) {
		return []*domain.Classification{{IsProduct: true, Name: "Only One"}}, nil
	})
	ctx := context.Background()

	got, err := f.service.Classify(ctx, testImages("a", "b"))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.service.Classify(ctx, testImages("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.classifier.Calls())
}

func TestVisionService_ContextCancelled(t *testing.T) {
	f := newVisionFixture(newStaticSettings(), VisionServiceConfig{}, func(images []domain.VisionImage) ([]*domain.Classification, error) {
		return nil, errors.New("should not matter")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.service.Classify(ctx, testImages("a"))

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVisionCacheKey(t *testing.T) {
	a := visionCacheKey("https://example.com/a.jpg")
	assert.Equal(t, a, visionCacheKey("https://example.com/a.jpg"))
	assert.NotEqual(t, a, visionCacheKey("https://example.com/b.jpg"))
	assert.Regexp(t, `^vision:[0-9a-f]+$`, a)
}
