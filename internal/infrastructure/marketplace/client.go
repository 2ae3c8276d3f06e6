package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

// DefaultBackoff is the retry delay schedule indexed by attempt
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// blockMarkers identify CAPTCHA / robot-check pages (matched lowercase)
var blockMarkers = [][]byte{
	[]byte("/errors/validatecaptcha"),
	[]byte("type the characters you see in this image"),
	[]byte("enter the characters you see below"),
	[]byte("api-services-support@amazon.com"),
	[]byte("<title>robot check</title>"),
	[]byte("to discuss automated access to amazon data"),
}

// Client searches marketplace regions and parses the result pages
type Client struct {
	fetcher    domain.PageFetcher
	baseURL    string
	maxRetries int
	backoff    []time.Duration
	userAgents []string
	pick       func(n int) int
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
	debug      bool
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sends every region's requests to baseURL instead of the region domain
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithRetries sets the retry budget and delay schedule
func WithRetries(maxRetries int, backoff []time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if len(backoff) > 0 {
			c.backoff = backoff
		}
	}
}

// WithUserAgents replaces the identity pool
func WithUserAgents(agents []string) Option {
	return func(c *Client) {
		if len(agents) > 0 {
			c.userAgents = agents
		}
	}
}

// WithSleep replaces the context-aware wait between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a marketplace client on top of a page transport
func NewClient(fetcher domain.PageFetcher, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		fetcher:    fetcher,
		maxRetries: 3,
		backoff:    DefaultBackoff,
		userAgents: defaultUserAgents,
		pick:       rand.Intn,
		sleep:      sleepContext,
		logger:     logger.Named("marketplace"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetDebug enables request/response logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Search runs the request state machine for one query and parses the clean response.
// Failures are *domain.SearchError values.
func (c *Client) Search(ctx context.Context, query string, region domain.Region) ([]domain.Listing, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(region.Code)).Observe(time.Since(start).Seconds())
	}()

	body, err := c.fetchResults(ctx, query, region)
	if err != nil {
		return nil, err
	}

	listings := Parse(body, region)
	c.logger.Info("search succeeded",
		zap.String("query", query),
		zap.String("region", string(region.Code)),
		zap.Int("listings", len(listings)))
	return listings, nil
}

// fetchResults is the Requesting/Retrying loop. Retries are strictly sequential.
func (c *Client) fetchResults(ctx context.Context, query string, region domain.Region) ([]byte, error) {
	reqURL := c.searchURL(query, region)

	for attempt := 0; ; attempt++ {
		res, err := c.doRequest(ctx, reqURL, region)

		var (
			kind  domain.SearchErrorKind
			delay = exponentialBackoff(c.backoff, attempt)
			cause error
		)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			kind, cause = domain.KindNetwork, err
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusServiceUnavailable:
			kind = domain.KindRateLimited
		case res.StatusCode < 200 || res.StatusCode > 299:
			c.recordAttempt(region, "bad_status")
			return nil, &domain.SearchError{Kind: domain.KindBadStatus, StatusCode: res.StatusCode, Attempts: attempt + 1}
		case IsBlockedPage(res.Body):
			kind = domain.KindBlocked
			delay *= 2
		default:
			c.recordAttempt(region, "success")
			if c.debug {
				c.logger.Debug("search response", zap.String("url", reqURL), zap.Int("bytes", len(res.Body)))
			}
			return res.Body, nil
		}

		status := 0
		if res != nil {
			status = res.StatusCode
		}
		c.recordAttempt(region, outcomeLabel(kind))

		if attempt >= c.maxRetries {
			c.logger.Warn("search failed",
				zap.String("query", query),
				zap.String("kind", string(kind)),
				zap.Int("attempts", attempt+1))
			return nil, &domain.SearchError{Kind: kind, StatusCode: status, Attempts: attempt + 1, Err: cause}
		}

		c.logger.Info("retrying search",
			zap.String("query", query),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(cause))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// doRequest issues one GET with a rotated identity
func (c *Client) doRequest(ctx context.Context, reqURL string, region domain.Region) (*domain.FetchResult, error) {
	header := http.Header{}
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	header.Set("Accept-Language", region.Language)
	header.Set("User-Agent", c.userAgents[c.pick(len(c.userAgents))])
	header.Set("Cache-Control", "no-cache")

	res, err := c.fetcher.Fetch(ctx, domain.FetchRequest{URL: reqURL, Header: header})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	return res, nil
}

// searchURL builds GET {origin}/s?k={query}
func (c *Client) searchURL(query string, region domain.Region) string {
	origin := c.baseURL
	if origin == "" {
		origin = region.BaseURL()
	}
	return fmt.Sprintf("%s/s?k=%s", origin, url.QueryEscape(query))
}

func (c *Client) recordAttempt(region domain.Region, outcome string) {
	metrics.SearchAttempts.WithLabelValues(string(region.Code), outcome).Inc()
}

// IsBlockedPage reports whether a response body is an anti-automation wall
func IsBlockedPage(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, m := range blockMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// exponentialBackoff returns the delay before retry number attempt+1.
// Past the end of the schedule the last delay keeps doubling.
func exponentialBackoff(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if attempt < len(schedule) {
		return schedule[attempt]
	}
	d := schedule[len(schedule)-1]
	for i := len(schedule); i <= attempt; i++ {
		d *= 2
	}
	return d
}

func outcomeLabel(kind domain.SearchErrorKind) string {
	switch kind {
	case domain.KindRateLimited:
		return "rate_limited"
	case domain.KindBlocked:
		return "blocked"
	case domain.KindNetwork:
		return "network"
	default:
		return "bad_status"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
