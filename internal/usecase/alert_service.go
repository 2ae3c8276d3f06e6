package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
	"github.com/pricelens/backend/internal/pricing"
)

const alertsKey = "alerts"

// Searcher runs one marketplace search
type Searcher interface {
	Search(ctx context.Context, query, region string) (*domain.SearchResult, error)
}

// AlertServiceConfig holds configuration for the alert evaluator
type AlertServiceConfig struct {
	InterAlertDelay     time.Duration
	RepeatNotifications bool
}

// EvaluationReport summarises one EvaluateAll run
type EvaluationReport struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// AlertService stores price alerts and evaluates them against fresh search results
type AlertService struct {
	store    domain.KeyValueStore
	searcher Searcher
	notifier domain.Notifier
	settings SettingsReader
	config   AlertServiceConfig
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger

	// mu guards the read-modify-write of the stored alert list
	mu sync.Mutex
}

// AlertOption configures an AlertService
type AlertOption func(*AlertService)

// WithAlertClock replaces time.Now
func WithAlertClock(now func() time.Time) AlertOption {
	return func(s *AlertService) { s.now = now }
}

// WithAlertSleep replaces the inter-alert wait
func WithAlertSleep(sleep func(ctx context.Context, d time.Duration) error) AlertOption {
	return func(s *AlertService) { s.sleep = sleep }
}

// NewAlertService creates an alert service
func NewAlertService(
	store domain.KeyValueStore,
	searcher Searcher,
	notifier domain.Notifier,
	settings SettingsReader,
	config AlertServiceConfig,
	logger *zap.Logger,
	opts ...AlertOption,
) *AlertService {
	s := &AlertService{
		store:    store,
		searcher: searcher,
		notifier: notifier,
		settings: settings,
		config:   config,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   logger.Named("alerts"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set creates the alert for req.ID or updates it in place
func (s *AlertService) Set(ctx context.Context, req domain.SetAlertRequest) (*domain.Alert, error) {
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.QueryText) == "" {
		return nil, fmt.Errorf("%w: alert needs an id and a query", domain.ErrInvalidRequest)
	}
	target, ok := pricing.Parse(req.TargetPrice)
	if !ok || !target.IsPositive() {
		return nil, fmt.Errorf("%w: target price %q", domain.ErrInvalidRequest, req.TargetPrice)
	}

	region := req.Region
	if region == "" && s.settings != nil {
		region = string(s.settings.Current().Region)
	}
	r, err := domain.LookupRegion(region)
	if err != nil {
		return nil, fmt.Errorf("%w: region %q: %v", domain.ErrInvalidRequest, region, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	targetNumeric, _ := target.Float64()
	alert := domain.Alert{
		ID:                 req.ID,
		QueryText:          strings.TrimSpace(req.QueryText),
		Title:              req.Title,
		TargetURL:          req.TargetURL,
		TargetPriceDisplay: strings.TrimSpace(req.TargetPrice),
		TargetPriceNumeric: targetNumeric,
		Region:             r.Code,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Current != nil {
		display := strings.TrimSpace(*req.Current)
		alert.CurrentPriceDisplay = &display
		if v, ok := pricing.ParseFloat(display); ok {
			alert.CurrentPriceNumeric = &v
		}
	}

	replaced := false
	for i := range alerts {
		if alerts[i].ID == req.ID {
			alert.CreatedAt = alerts[i].CreatedAt
			if alert.CurrentPriceDisplay == nil {
				alert.CurrentPriceDisplay = alerts[i].CurrentPriceDisplay
				alert.CurrentPriceNumeric = alerts[i].CurrentPriceNumeric
			}
			alerts[i] = alert
			replaced = true
			break
		}
	}
	if !replaced {
		alerts = append(alerts, alert)
	}

	if err := s.save(ctx, alerts); err != nil {
		return nil, err
	}
	s.logger.Info("alert saved", zap.String("id", alert.ID), zap.String("target", alert.TargetPriceDisplay), zap.Bool("updated", replaced))
	return &alert, nil
}

// Remove deletes the alert with id
func (s *AlertService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range alerts {
		if alerts[i].ID == id {
			alerts = append(alerts[:i], alerts[i+1:]...)
			return s.save(ctx, alerts)
		}
	}
	return domain.ErrNotFound
}

// List returns every stored alert in insertion order
func (s *AlertService) List(ctx context.Context) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// EvaluateAll re-searches every alert, updates current prices and notifies on drops.
// One alert failing does not stop the run. The alert set is written once at the end.
func (s *AlertService) EvaluateAll(ctx context.Context) (*EvaluationReport, error) {
	alerts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &EvaluationReport{}
	evaluated := make(map[string]domain.Alert, len(alerts))

	for i := range alerts {
		if i > 0 && s.config.InterAlertDelay > 0 {
			if err := s.sleep(ctx, s.config.InterAlertDelay); err != nil {
				s.logger.Info("alert evaluation interrupted", zap.Int("remaining", len(alerts)-i))
				break
			}
		}

		report.Checked++
		updated, notified, err := s.evaluate(ctx, &alerts[i])
		if updated {
			evaluated[alerts[i].ID] = alerts[i]
		}
		switch {
		case err != nil:
			report.Failed++
			metrics.AlertEvaluations.WithLabelValues("error").Inc()
			s.logger.Warn("alert evaluation failed", zap.String("id", alerts[i].ID), zap.Error(err))
		case updated:
			report.Updated++
			metrics.AlertEvaluations.WithLabelValues("updated").Inc()
		default:
			metrics.AlertEvaluations.WithLabelValues("no_price").Inc()
		}
		if notified {
			report.Notified++
		}
	}

	if len(evaluated) > 0 {
		// An interrupted run still keeps the prices it already fetched
		if err := s.merge(context.WithoutCancel(ctx), evaluated); err != nil {
			return report, err
		}
	}

	s.logger.Info("alert evaluation finished",
		zap.Int("checked", report.Checked),
		zap.Int("updated", report.Updated),
		zap.Int("notified", report.Notified),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// evaluate refreshes one alert. A panic inside is reported as that alert's error.
func (s *AlertService) evaluate(ctx context.Context, alert *domain.Alert) (updated, notified bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating alert %s: %v", alert.ID, r)
		}
	}()

	result, err := s.searcher.Search(ctx, alert.QueryText, string(alert.Region))
	if err != nil {
		return false, false, err
	}

	listing, ok := matchListing(result.Listings, alert.ID)
	if !ok || listing.NumericPrice == nil {
		return false, false, nil
	}

	display := listing.DisplayPrice
	price := *listing.NumericPrice
	alert.CurrentPriceDisplay = &display
	alert.CurrentPriceNumeric = &price
	alert.UpdatedAt = s.now()

	if !pricing.AtOrBelow(price, alert.TargetPriceNumeric) {
		alert.Notified = false
		return true, false, nil
	}
	if alert.Notified && !s.config.RepeatNotifications {
		return true, false, nil
	}

	if err := s.notifier.Notify(ctx, s.notification(*alert, listing)); err != nil {
		return true, false, fmt.Errorf("notify: %w", err)
	}
	alert.Notified = true
	return true, true, nil
}

func (s *AlertService) notification(alert domain.Alert, listing domain.Listing) domain.Notification {
	title := alert.Title
	if title == "" {
		title = listing.Title
	}
	url := alert.TargetURL
	if url == "" {
		url = listing.DetailURL
	}
	return domain.Notification{
		ID:        uuid.NewString(),
		AlertID:   alert.ID,
		Title:     "Price drop alert",
		Message:   fmt.Sprintf("%s is now %s (your target: %s)", title, listing.DisplayPrice, alert.TargetPriceDisplay),
		Price:     listing.DisplayPrice,
		Target:    alert.TargetPriceDisplay,
		URL:       url,
		Region:    alert.Region,
		CreatedAt: s.now(),
	}
}

// merge writes evaluated price state onto the current stored set. Alerts removed or
// re-targeted while the run was in flight keep their newer state.
func (s *AlertService) merge(ctx context.Context, evaluated map[string]domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range alerts {
		e, ok := evaluated[alerts[i].ID]
		if !ok {
			continue
		}
		alerts[i].CurrentPriceDisplay = e.CurrentPriceDisplay
		alerts[i].CurrentPriceNumeric = e.CurrentPriceNumeric
		alerts[i].UpdatedAt = e.UpdatedAt
		if alerts[i].TargetPriceNumeric == e.TargetPriceNumeric {
			alerts[i].Notified = e.Notified
		}
	}
	return s.save(ctx, alerts)
}

func (s *AlertService) load(ctx context.Context) ([]domain.Alert, error) {
	raw, err := s.store.Get(ctx, domain.BucketAlerts, alertsKey)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Alert{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return alerts, nil
}

func (s *AlertService) save(ctx context.Context, alerts []domain.Alert) error {
	raw, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	if err := s.store.Set(ctx, domain.BucketAlerts, alertsKey, raw); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

// matchListing finds id among listings, falling back to the top result
func matchListing(listings []domain.Listing, id string) (domain.Listing, bool) {
	for _, l := range listings {
		if l.ID == id {
			return l, true
		}
	}
	if len(listings) > 0 {
		return listings[0], true
	}
	return domain.Listing{}, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
