package fetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// AutoFetcher tries the cheap transport first and escalates to the browser
// when the response is a shell or an anti-automation wall.
type AutoFetcher struct {
	primary  domain.PageFetcher
	fallback domain.PageFetcher
	escalate func(*domain.FetchResult) bool
	logger   *zap.Logger
}

// NewAutoFetcher combines two transports. blocked may be nil.
func NewAutoFetcher(primary, fallback domain.PageFetcher, blocked func(body []byte) bool, logger *zap.Logger) *AutoFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoFetcher{
		primary:  primary,
		fallback: fallback,
		escalate: func(res *domain.FetchResult) bool {
			if res.StatusCode < 200 || res.StatusCode > 299 {
				return false
			}
			if blocked != nil && blocked(res.Body) {
				return true
			}
			return !IsSufficient(res.Body)
		},
		logger: logger.Named("fetch.auto"),
	}
}

// Fetch returns the primary result unless it needs escalation. If the fallback
// fails the primary result is returned so the caller's retry logic still applies.
func (f *AutoFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	res, err := f.primary.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !f.escalate(res) {
		return res, nil
	}

	f.logger.Info("escalating to browser", zap.String("url", req.URL))
	rendered, err := f.fallback.Fetch(ctx, req)
	if err != nil {
		f.logger.Warn("browser fetch failed", zap.String("url", req.URL), zap.Error(err))
		return res, nil
	}
	return rendered, nil
}
