package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// staticSettings serves fixed settings
type staticSettings struct {
	mu sync.Mutex
	s  domain.Settings
}

func newStaticSettings(mutate ...func(*domain.Settings)) *staticSettings {
	s := testSettings()
	for _, m := range mutate {
		m(&s)
	}
	return &staticSettings{s: s}
}

func (s *staticSettings) Current() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func testSettings() domain.Settings {
	return domain.Settings{
		Region:               domain.RegionUS,
		AlertsEnabled:        true,
		AutoCheck:            true,
		CheckIntervalMinutes: 360,
		HistoryEnabled:       true,
		HistoryRetentionDays: 30,
		MinConfidence:        0.5,
		VisionEnabled:        true,
		VisionAPIKey:         "test-key",
	}
}

func floatPtr(v float64) *float64 { return &v }

func newListing(id, title, display string, numeric float64) domain.Listing {
	return domain.Listing{ID: id, Title: title, DisplayPrice: display, NumericPrice: floatPtr(numeric), Region: domain.RegionUS}
}

// stubMarketplace counts searches and returns canned listings
type stubMarketplace struct {
	mu       sync.Mutex
	calls    int
	listings []domain.Listing
	err      error
}

func (m *stubMarketplace) Search(ctx context.Context, query string, region domain.Region) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.listings, nil
}

func (m *stubMarketplace) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, domain.Event{Type: eventType, Payload: payload})
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// recordingNotifier keeps every notification
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) Sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

// stubFetcher serves pages from a function
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(req domain.FetchRequest) (*domain.FetchResult, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okPage(body string) func(domain.FetchRequest) (*domain.FetchResult, error) {
	return func(req domain.FetchRequest) (*domain.FetchResult, error) {
		return &domain.FetchResult{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
	}
}
