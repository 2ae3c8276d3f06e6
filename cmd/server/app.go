package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
	httpDelivery "github.com/pricelens/backend/internal/delivery/http"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/events"
	"github.com/pricelens/backend/internal/infrastructure/fetch"
	"github.com/pricelens/backend/internal/infrastructure/gemini"
	"github.com/pricelens/backend/internal/infrastructure/kvstore"
	"github.com/pricelens/backend/internal/infrastructure/marketplace"
	"github.com/pricelens/backend/internal/infrastructure/notify"
	"github.com/pricelens/backend/internal/scheduler"
	"github.com/pricelens/backend/internal/usecase"
)

// app is the fully wired core shared by the server and the one-shot commands
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store       domain.KeyValueStore
	searchCache *cache.MemoryCache
	visionCache *cache.MemoryCache
	hub         *events.Hub
	sched       *scheduler.Scheduler
	vision      *gemini.Client

	settings  *usecase.SettingsService
	extractor *usecase.Extractor
	history   *usecase.HistoryStore
	search    *usecase.SearchService
	alerts    *usecase.AlertService
	detection *usecase.DetectionService
	watcher   *usecase.PageWatcher
	classify  *usecase.VisionService
	images    *usecase.ImageQueue

	closers []func()
}

// newApp opens the store, builds every service and loads persisted settings
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := kvstore.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.store = store
	logger.Info("store opened", zap.String("driver", cfg.Store.Driver))

	pages, closeFetcher := newFetcher(cfg, logger)
	a.closers = append(a.closers, closeFetcher)

	opts := []marketplace.Option{
		marketplace.WithRetries(cfg.Marketplace.MaxRetries, cfg.Marketplace.Backoff),
		marketplace.WithUserAgents(cfg.Marketplace.UserAgents),
	}
	if cfg.Marketplace.BaseURL != "" {
		opts = append(opts, marketplace.WithBaseURL(cfg.Marketplace.BaseURL))
	}
	market := marketplace.NewClient(pages, logger, opts...)
	if cfg.Server.Environment == "development" {
		market.SetDebug(true)
		logger.Debug("marketplace client debug mode enabled")
	}

	a.searchCache = cache.NewMemoryCache(cache.WithName("search"), cache.WithCleanupInterval(cfg.Cache.CleanupInterval))
	a.visionCache = cache.NewMemoryCache(cache.WithName("vision"), cache.WithCleanupInterval(cfg.Cache.CleanupInterval))
	a.hub = events.NewHub(32, logger)
	a.sched = scheduler.New(logger)
	a.vision = gemini.NewClient(cfg.Vision.Endpoint, cfg.Vision.Model, logger)

	a.settings = usecase.NewSettingsService(store, settingsDefaults(cfg), logger)
	current, err := a.settings.Load(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.extractor = usecase.NewExtractor(current.MinConfidence)
	a.history = usecase.NewHistoryStore(store, a.settings, logger, usecase.WithMaxPoints(cfg.History.MaxPoints))
	a.search = usecase.NewSearchService(market, a.searchCache, a.history, a.settings, usecase.SearchServiceConfig{
		CacheTTL:  cfg.Cache.SearchTTL,
		PerSearch: cfg.History.PerSearch,
	}, logger)
	a.alerts = usecase.NewAlertService(store, a.search, notify.NewEventNotifier(a.hub, logger), a.settings, usecase.AlertServiceConfig{
		InterAlertDelay:     cfg.Alerts.InterAlertDelay,
		RepeatNotifications: cfg.Alerts.RepeatNotifications,
	}, logger)
	a.detection = usecase.NewDetectionService(a.extractor, pages, a.hub, logger)
	a.watcher = usecase.NewPageWatcher(pages, a.extractor, a.hub, usecase.PageWatcherConfig{
		Interval: cfg.Detection.WatchInterval,
		Quiet:    cfg.Detection.Debounce,
	}, logger)
	a.classify = usecase.NewVisionService(a.vision, a.visionCache, a.settings, usecase.VisionServiceConfig{
		BatchSize:   cfg.Vision.BatchSize,
		MaxCalls:    cfg.Vision.MaxCalls,
		Window:      cfg.Vision.Window,
		Concurrency: cfg.Vision.Concurrency,
		CacheTTL:    cfg.Cache.VisionTTL,
	}, logger)
	a.images = usecase.NewImageQueue(a.classify, a.hub, usecase.ImageQueueConfig{
		Debounce:     cfg.Vision.Debounce,
		MinImageSize: cfg.Vision.MinImageSize,
	}, logger)

	a.settings.OnChange(func(prev, next domain.Settings) {
		a.extractor.SetMinConfidence(next.MinConfidence)
		if err := usecase.SyncPriceCheck(a.sched, next, a.alerts, logger); err != nil {
			logger.Error("reschedule price check", zap.Error(err))
		}
	})

	return a, nil
}

// startScheduler arms the periodic price check from the loaded settings
func (a *app) startScheduler() error {
	return usecase.SyncPriceCheck(a.sched, a.settings.Current(), a.alerts, a.logger)
}

func (a *app) handler() *httpDelivery.Handler {
	return httpDelivery.NewHandler(httpDelivery.Services{
		Search:    a.search,
		Detection: a.detection,
		Watcher:   a.watcher,
		Alerts:    a.alerts,
		History:   a.history,
		Vision:    a.classify,
		Images:    a.images,
		Settings:  a.settings,
		Events:    a.hub,
		Verifier:  a.vision,
	}, a.logger)
}

// Close stops background work and releases the store. Safe on a partially built app.
func (a *app) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.images != nil {
		a.images.Close()
	}
	if a.searchCache != nil {
		a.searchCache.Close()
	}
	if a.visionCache != nil {
		a.visionCache.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
}

// newFetcher builds the page transport selected by marketplace.transport
func newFetcher(cfg *config.Config, logger *zap.Logger) (domain.PageFetcher, func()) {
	plain := fetch.NewHTTPFetcher(logger, fetch.WithTimeout(cfg.Marketplace.RequestTimeout))
	browser := func() *fetch.BrowserFetcher {
		return fetch.NewBrowserFetcher(fetch.BrowserConfig{
			RemoteURL:  cfg.Browser.RemoteURL,
			Headless:   cfg.Browser.Headless,
			NavTimeout: cfg.Marketplace.RequestTimeout,
		}, logger)
	}
	closeBrowser := func(b *fetch.BrowserFetcher) func() {
		return func() {
			if err := b.Close(); err != nil {
				logger.Warn("close browser", zap.Error(err))
			}
		}
	}

	switch cfg.Marketplace.Transport {
	case "browser":
		b := browser()
		return b, closeBrowser(b)
	case "auto":
		b := browser()
		return fetch.NewAutoFetcher(plain, b, marketplace.IsBlockedPage, logger), closeBrowser(b)
	default:
		return plain, func() {}
	}
}

// settingsDefaults seeds user settings from configuration on first run
func settingsDefaults(cfg *config.Config) domain.Settings {
	region := domain.RegionUS
	if r, err := domain.LookupRegion(cfg.Marketplace.DefaultRegion); err == nil {
		region = r.Code
	}
	return domain.Settings{
		Region:               region,
		AlertsEnabled:        cfg.Alerts.Enabled,
		AutoCheck:            cfg.Alerts.AutoCheck,
		CheckIntervalMinutes: int(cfg.Alerts.CheckInterval / time.Minute),
		HistoryEnabled:       cfg.History.Enabled,
		HistoryRetentionDays: cfg.History.RetentionDays,
		AutoDetect:           true,
		MinConfidence:        cfg.Detection.MinConfidence,
		VisionEnabled:        cfg.Vision.Enabled,
		VisionAPIKey:         cfg.Vision.APIKey,
	}
}
