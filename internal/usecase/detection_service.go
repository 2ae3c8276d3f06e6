package usecase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// DetectionService runs the extractor over a supplied snapshot or a fetched page
type DetectionService struct {
	extractor *Extractor
	queries   *QueryBuilder
	fetcher   domain.PageFetcher
	publisher domain.EventPublisher
	logger    *zap.Logger
}

// NewDetectionService creates a detection service. fetcher may be nil when only snapshots are used.
func NewDetectionService(extractor *Extractor, fetcher domain.PageFetcher, publisher domain.EventPublisher, logger *zap.Logger) *DetectionService {
	return &DetectionService{
		extractor: extractor,
		queries:   NewQueryBuilder(logger),
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger.Named("detection"),
	}
}

// Detect extracts candidates from req.HTML, or from req.URL when no snapshot is given,
// and publishes them as a candidatesDetected event
func (s *DetectionService) Detect(ctx context.Context, req domain.DetectRequest) ([]domain.Candidate, error) {
	var (
		candidates []domain.Candidate
		err        error
	)

	switch {
	case strings.TrimSpace(req.HTML) != "":
		candidates, err = s.extractor.ExtractHTML(strings.NewReader(req.HTML))
	case strings.TrimSpace(req.URL) != "":
		var body []byte
		body, err = s.fetchPage(ctx, req.URL)
		if err == nil {
			candidates, err = s.extractor.ExtractHTML(bytes.NewReader(body))
		}
	default:
		return nil, fmt.Errorf("%w: html or url is required", domain.ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Query = s.queries.Build(candidates[i])
	}

	s.logger.Debug("candidates detected", zap.String("url", req.URL), zap.Int("count", len(candidates)))
	if s.publisher != nil {
		s.publisher.Publish(domain.EventCandidatesDetected, domain.CandidatesPayload{URL: req.URL, Candidates: candidates})
	}
	return candidates, nil
}

// fetchPage GETs pageURL and returns the body of a 2xx response
func (s *DetectionService) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no page transport configured", domain.ErrConfiguration)
	}
	if err := validatePageURL(pageURL); err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	res, err := s.fetcher.Fetch(ctx, domain.FetchRequest{URL: pageURL, Header: header})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrBadStatus, pageURL, res.StatusCode)
	}
	return res.Body, nil
}

func validatePageURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) address", domain.ErrInvalidRequest)
	}
	return nil
}
