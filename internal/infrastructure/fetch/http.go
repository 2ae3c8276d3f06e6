// Package fetch implements the page transports behind the marketplace client:
// a plain HTTP GET, a stealth headless browser, and an escalating combination of both.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// maxBody caps a single response read
const maxBody = 10 << 20

// HTTPFetcher performs plain HTTP GETs
type HTTPFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// HTTPOption configures an HTTPFetcher
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher with a 30s timeout
func NewHTTPFetcher(logger *zap.Logger, opts ...HTTPOption) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("fetch.http"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs req.URL. Any status code is returned in the result.
func (f *HTTPFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	f.logger.Debug("fetched",
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("size", len(body)))

	return &domain.FetchResult{URL: req.URL, StatusCode: resp.StatusCode, Body: body}, nil
}
