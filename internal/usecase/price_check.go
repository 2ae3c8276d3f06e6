package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// PriceCheckJob names the periodic alert evaluation
const PriceCheckJob = "priceCheck"

// JobScheduler runs named periodic jobs
type JobScheduler interface {
	Schedule(name string, period time.Duration, job func(ctx context.Context)) error
	Clear(name string) bool
}

// SyncPriceCheck makes the scheduled alert evaluation match settings: cleared when
// alerts or auto-check are off, otherwise run every check interval
func SyncPriceCheck(sched JobScheduler, settings domain.Settings, alerts *AlertService, logger *zap.Logger) error {
	if !settings.SchedulingEnabled() {
		sched.Clear(PriceCheckJob)
		return nil
	}

	period := time.Duration(settings.CheckIntervalMinutes) * time.Minute
	return sched.Schedule(PriceCheckJob, period, func(ctx context.Context) {
		if _, err := alerts.EvaluateAll(ctx); err != nil {
			logger.Error("scheduled price check failed", zap.Error(err))
		}
	})
}
