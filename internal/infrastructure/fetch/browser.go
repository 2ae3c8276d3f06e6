package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// BrowserConfig configures the headless transport
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket of an external Chrome. Empty launches a local one.
	RemoteURL  string
	Headless   bool
	NavTimeout time.Duration
}

// BrowserFetcher renders pages in a stealth headless Chrome.
// The browser is started on first use and shared by all fetches.
type BrowserFetcher struct {
	cfg    BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserFetcher creates a BrowserFetcher. Chrome is not started until the first Fetch.
func NewBrowserFetcher(cfg BrowserConfig, logger *zap.Logger) *BrowserFetcher {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{cfg: cfg, logger: logger.Named("fetch.browser")}
}

// Fetch navigates a fresh stealth tab to req.URL and returns the rendered DOM.
// A page that loads reports status 200; the browser does not expose the document status.
func (f *BrowserFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	b, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	if ua := req.Header.Get("User-Agent"); ua != "" {
		override := &proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: req.Header.Get("Accept-Language"),
		}
		if err := page.SetUserAgent(override); err != nil {
			f.logger.Warn("set user agent failed", zap.Error(err))
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", req.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.logger.Warn("wait load timeout", zap.String("url", req.URL), zap.Error(err))
	}

	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}

	f.logger.Debug("rendered", zap.String("url", req.URL), zap.Int("size", len(html)))
	return &domain.FetchResult{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(html)}, nil
}

func (f *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, fmt.Errorf("browser: fetcher is closed")
	}
	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(f.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
		f.logger.Info("launched local chrome", zap.String("url", wsURL))
	} else {
		f.logger.Info("connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	return b, nil
}

// Close shuts Chrome down. Further fetches fail.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch = nil
	}
	return err
}
