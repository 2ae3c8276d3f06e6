package usecase

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// PageWatcherConfig holds configuration for the page watcher
type PageWatcherConfig struct {
	Interval time.Duration
	Quiet    time.Duration
}

// PageWatcher polls pages and re-runs detection after their content changes.
// Events are only published when the ranked candidate set changes.
type PageWatcher struct {
	fetcher   domain.PageFetcher
	extractor *Extractor
	publisher domain.EventPublisher
	config    PageWatcherConfig
	logger    *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	watches map[string]*pageWatch
	wg      sync.WaitGroup
}

type pageWatch struct {
	url       string
	cancel    context.CancelFunc
	debouncer *Debouncer

	mu         sync.Mutex
	hash       uint64
	body       []byte
	candidates []domain.Candidate
}

// NewPageWatcher creates a page watcher
func NewPageWatcher(fetcher domain.PageFetcher, extractor *Extractor, publisher domain.EventPublisher, config PageWatcherConfig, logger *zap.Logger) *PageWatcher {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Quiet <= 0 {
		config.Quiet = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PageWatcher{
		fetcher:   fetcher,
		extractor: extractor,
		publisher: publisher,
		config:    config,
		logger:    logger.Named("watcher"),
		ctx:       ctx,
		cancel:    cancel,
		watches:   make(map[string]*pageWatch),
	}
}

// Watch starts polling pageURL. Watching an already watched page is a no-op.
func (w *PageWatcher) Watch(pageURL string) error {
	if err := validatePageURL(pageURL); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return fmt.Errorf("page watcher is closed")
	}
	if _, ok := w.watches[pageURL]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(w.ctx)
	pw := &pageWatch{url: pageURL, cancel: cancel}
	pw.debouncer = NewDebouncer(w.config.Quiet, func() { w.detect(pw) })
	w.watches[pageURL] = pw

	w.wg.Add(1)
	go w.poll(ctx, pw)

	w.logger.Info("watching page", zap.String("url", pageURL), zap.Duration("interval", w.config.Interval))
	return nil
}

// Unwatch stops polling pageURL
func (w *PageWatcher) Unwatch(pageURL string) error {
	w.mu.Lock()
	pw, ok := w.watches[pageURL]
	delete(w.watches, pageURL)
	w.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	pw.cancel()
	pw.debouncer.Stop()
	return nil
}

// Watched lists the watched pages in order
func (w *PageWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watches))
	for u := range w.watches {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Close stops every watch and waits for the pollers to exit
func (w *PageWatcher) Close() {
	w.mu.Lock()
	w.cancel()
	for u, pw := range w.watches {
		pw.debouncer.Stop()
		delete(w.watches, u)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *PageWatcher) poll(ctx context.Context, pw *pageWatch) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.check(ctx, pw)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx, pw)
		}
	}
}

// check fetches the page and schedules detection when its content hash moved
func (w *PageWatcher) check(ctx context.Context, pw *pageWatch) {
	header := make(http.Header)
	header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := w.fetcher.Fetch(ctx, domain.FetchRequest{URL: pw.url, Header: header})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("page fetch failed", zap.String("url", pw.url), zap.Error(err))
		}
		return
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		w.logger.Warn("page fetch returned bad status", zap.String("url", pw.url), zap.Int("status", res.StatusCode))
		return
	}

	h := fnv.New64a()
	h.Write(res.Body)
	sum := h.Sum64()

	pw.mu.Lock()
	changed := sum != pw.hash
	if changed {
		pw.hash = sum
		pw.body = res.Body
	}
	pw.mu.Unlock()

	if changed {
		pw.debouncer.Trigger()
	}
}

// detect runs the extractor over the latest body and publishes a changed ranked set
func (w *PageWatcher) detect(pw *pageWatch) {
	pw.mu.Lock()
	body := pw.body
	pw.mu.Unlock()

	candidates, err := w.extractor.ExtractHTML(bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("page extraction failed", zap.String("url", pw.url), zap.Error(err))
		return
	}

	pw.mu.Lock()
	same := sameCandidates(pw.candidates, candidates)
	pw.candidates = candidates
	pw.mu.Unlock()

	if same {
		return
	}
	w.publisher.Publish(domain.EventCandidatesDetected, domain.CandidatesPayload{URL: pw.url, Candidates: candidates})
}
