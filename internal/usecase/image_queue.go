package usecase

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// maxImagesPerPass bounds one dispatch; the rest wait for the next pass
const maxImagesPerPass = 5

var nonProductImage = regexp.MustCompile(`(?i)logo|icon|avatar|banner|sprite|button|social|payment|flag|arrow|loading|placeholder`)

// ImageClassifier turns page images into product candidates
type ImageClassifier interface {
	Classify(ctx context.Context, images []domain.VisionImage) ([]domain.Candidate, error)
	Enabled() bool
}

// VisibilityRegistry tracks images until they first become visible
type VisibilityRegistry struct {
	mu       sync.Mutex
	observed map[string]domain.VisionImage
}

// NewVisibilityRegistry creates an empty registry
func NewVisibilityRegistry() *VisibilityRegistry {
	return &VisibilityRegistry{observed: make(map[string]domain.VisionImage)}
}

// Observe starts watching img. It reports false when img is already watched.
func (r *VisibilityRegistry) Observe(img domain.VisionImage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.observed[img.SourceURL]; ok {
		return false
	}
	r.observed[img.SourceURL] = img
	return true
}

// Visible unobserves the image named by ev and returns it when ev is a qualifying event.
// The image carried by ev replaces the observed one so late-loaded payloads are kept.
func (r *VisibilityRegistry) Visible(ev domain.VisibilityEvent) (domain.VisionImage, bool) {
	if !ev.Visible {
		return domain.VisionImage{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.observed[ev.Image.SourceURL]
	if !ok {
		return domain.VisionImage{}, false
	}
	delete(r.observed, ev.Image.SourceURL)
	if ev.Image.Base64 != "" {
		img = ev.Image
	}
	return img, true
}

// Len returns the number of images still watched
func (r *VisibilityRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observed)
}

// Reset stops watching everything
func (r *VisibilityRegistry) Reset() {
	r.mu.Lock()
	r.observed = make(map[string]domain.VisionImage)
	r.mu.Unlock()
}

// ImageQueueConfig holds configuration for the image queue
type ImageQueueConfig struct {
	Debounce     time.Duration
	MinImageSize int
	Timeout      time.Duration
}

// ImageQueue feeds images that scrolled into view to the vision processor.
// Each image is dispatched at most once until Reset.
type ImageQueue struct {
	classifier ImageClassifier
	publisher  domain.EventPublisher
	registry   *VisibilityRegistry
	debouncer  *Debouncer
	config     ImageQueueConfig
	logger     *zap.Logger

	mu      sync.Mutex
	seen    map[string]bool
	pending []domain.VisionImage
}

// NewImageQueue creates an image queue
func NewImageQueue(classifier ImageClassifier, publisher domain.EventPublisher, config ImageQueueConfig, logger *zap.Logger) *ImageQueue {
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if config.MinImageSize <= 0 {
		config.MinImageSize = 80
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	q := &ImageQueue{
		classifier: classifier,
		publisher:  publisher,
		registry:   NewVisibilityRegistry(),
		config:     config,
		logger:     logger.Named("image_queue"),
		seen:       make(map[string]bool),
	}
	q.debouncer = NewDebouncer(config.Debounce, q.dispatch)
	return q
}

// Observe registers images worth classifying and returns how many were added
func (q *ImageQueue) Observe(images []domain.VisionImage) int {
	added := 0
	for _, img := range images {
		if !q.qualifies(img) {
			continue
		}
		q.mu.Lock()
		seen := q.seen[img.SourceURL]
		q.mu.Unlock()
		if seen {
			continue
		}
		if q.registry.Observe(img) {
			added++
		}
	}
	return added
}

// HandleVisibility queues observed images that became visible and restarts the debounce.
// Nothing is queued while vision detection is off.
func (q *ImageQueue) HandleVisibility(events []domain.VisibilityEvent) int {
	if !q.classifier.Enabled() {
		return 0
	}
	queued := 0
	q.mu.Lock()
	for _, ev := range events {
		img, ok := q.registry.Visible(ev)
		if !ok || q.seen[img.SourceURL] {
			continue
		}
		q.seen[img.SourceURL] = true
		q.pending = append(q.pending, img)
		queued++
	}
	q.mu.Unlock()

	if queued > 0 {
		q.debouncer.Trigger()
	}
	return queued
}

// Pending returns the number of images waiting for dispatch
func (q *ImageQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Reset forgets every seen, watched and pending image so the page can be rescanned
func (q *ImageQueue) Reset() {
	q.mu.Lock()
	q.seen = make(map[string]bool)
	q.pending = nil
	q.mu.Unlock()
	q.registry.Reset()
}

// Close stops future dispatches
func (q *ImageQueue) Close() {
	q.debouncer.Stop()
}

// qualifies applies the size and name filters. Images not yet loaded have no size.
func (q *ImageQueue) qualifies(img domain.VisionImage) bool {
	if img.SourceURL == "" {
		return false
	}
	if img.Loaded && (img.Width < q.config.MinImageSize || img.Height < q.config.MinImageSize) {
		return false
	}
	return !nonProductImage.MatchString(img.SourceURL + img.Alt)
}

// dispatch classifies up to maxImagesPerPass pending images and publishes any products
func (q *ImageQueue) dispatch() {
	if !q.classifier.Enabled() {
		q.mu.Lock()
		dropped := len(q.pending)
		q.pending = nil
		q.mu.Unlock()
		if dropped > 0 {
			q.logger.Debug("vision detection disabled, dropping queued images", zap.Int("images", dropped))
		}
		return
	}

	q.mu.Lock()
	n := min(len(q.pending), maxImagesPerPass)
	batch := append([]domain.VisionImage(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	remaining := len(q.pending)
	q.mu.Unlock()

	if remaining > 0 {
		defer q.debouncer.Trigger()
	}

	ready := batch[:0]
	for _, img := range batch {
		if img.Base64 != "" {
			ready = append(ready, img)
		}
	}
	if len(ready) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.config.Timeout)
	defer cancel()

	candidates, err := q.classifier.Classify(ctx, ready)
	if err != nil {
		q.logger.Warn("image classification failed", zap.Int("images", len(ready)), zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}
	q.publisher.Publish(domain.EventVisionCandidatesDetected, domain.CandidatesPayload{Candidates: candidates})
}
