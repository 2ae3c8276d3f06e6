package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const settingsKey = "settings"

// SettingsReader exposes the current user settings
type SettingsReader interface {
	Current() domain.Settings
}

// SettingsService owns the persisted settings record and tells listeners about changes
type SettingsService struct {
	store    domain.KeyValueStore
	defaults domain.Settings
	logger   *zap.Logger

	mu        sync.RWMutex
	current   domain.Settings
	listeners []func(prev, next domain.Settings)
}

// NewSettingsService creates a settings service. defaults apply until Load finds a stored record.
func NewSettingsService(store domain.KeyValueStore, defaults domain.Settings, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		defaults: defaults,
		current:  defaults,
		logger:   logger.Named("settings"),
	}
}

// Load reads the stored settings over the defaults. A missing record keeps the defaults.
func (s *SettingsService) Load(ctx context.Context) (domain.Settings, error) {
	loaded := s.defaults

	raw, err := s.store.Get(ctx, domain.BucketSettings, settingsKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return s.Current(), fmt.Errorf("load settings: %w", err)
	default:
		if err := json.Unmarshal(raw, &loaded); err != nil {
			s.logger.Warn("stored settings are corrupt, using defaults", zap.Error(err))
			loaded = s.defaults
		}
	}

	normalized, err := validateSettings(loaded)
	if err != nil {
		s.logger.Warn("stored settings are invalid, using defaults", zap.Error(err))
		normalized = s.defaults
	}

	s.mu.Lock()
	s.current = normalized
	s.mu.Unlock()
	return normalized, nil
}

// Current returns a copy of the active settings
func (s *SettingsService) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates, persists and activates next. A masked API key keeps the stored key.
func (s *SettingsService) Update(ctx context.Context, next domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	prev := s.current
	if next.VisionAPIKey != "" && next.VisionAPIKey == MaskAPIKey(prev.VisionAPIKey) {
		next.VisionAPIKey = prev.VisionAPIKey
	}

	normalized, err := validateSettings(next)
	if err != nil {
		s.mu.Unlock()
		return prev, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		s.mu.Unlock()
		return prev, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Set(ctx, domain.BucketSettings, settingsKey, raw); err != nil {
		s.mu.Unlock()
		return prev, fmt.Errorf("save settings: %w", err)
	}
	s.current = normalized
	listeners := append([]func(prev, next domain.Settings){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Info("settings updated",
		zap.String("region", string(normalized.Region)),
		zap.Bool("alerts", normalized.AlertsEnabled),
		zap.Int("check_interval_minutes", normalized.CheckIntervalMinutes),
	)
	for _, fn := range listeners {
		fn(prev, normalized)
	}
	return normalized, nil
}

// OnChange registers fn to run after every successful Update
func (s *SettingsService) OnChange(fn func(prev, next domain.Settings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// MaskAPIKey hides all but the last four characters of key
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// Masked returns settings safe to hand to the shell
func Masked(s domain.Settings) domain.Settings {
	s.VisionAPIKey = MaskAPIKey(s.VisionAPIKey)
	return s
}

func validateSettings(s domain.Settings) (domain.Settings, error) {
	region, err := domain.LookupRegion(string(s.Region))
	if err != nil {
		return s, fmt.Errorf("%w: region %q: %v", domain.ErrInvalidRequest, s.Region, err)
	}
	s.Region = region.Code

	if s.CheckIntervalMinutes < 0 {
		return s, fmt.Errorf("%w: check interval must not be negative", domain.ErrInvalidRequest)
	}
	if s.HistoryRetentionDays <= 0 {
		return s, fmt.Errorf("%w: history retention must be at least one day", domain.ErrInvalidRequest)
	}
	if s.MinConfidence < ConfidenceFloor || s.MinConfidence > 1 {
		return s, fmt.Errorf("%w: min confidence must be within [%.1f, 1], got %v", domain.ErrInvalidRequest, ConfidenceFloor, s.MinConfidence)
	}
	s.VisionAPIKey = strings.TrimSpace(s.VisionAPIKey)
	return s, nil
}
