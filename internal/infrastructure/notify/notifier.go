// Package notify delivers alert notifications.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

// EventNotifier logs each notification and forwards it to the shell as an alertTriggered event
type EventNotifier struct {
	publisher domain.EventPublisher
	logger    *zap.Logger
}

// NewEventNotifier creates a notifier. publisher may be nil for log-only delivery.
func NewEventNotifier(publisher domain.EventPublisher, logger *zap.Logger) *EventNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventNotifier{publisher: publisher, logger: logger.Named("notify")}
}

func (n *EventNotifier) Notify(ctx context.Context, note domain.Notification) error {
	n.logger.Info("price alert",
		zap.String("alert_id", note.AlertID),
		zap.String("title", note.Title),
		zap.String("price", note.Price),
		zap.String("target", note.Target),
		zap.String("region", string(note.Region)))

	if n.publisher != nil {
		n.publisher.Publish(domain.EventAlertTriggered, note)
	}
	metrics.NotificationsSent.Inc()
	return nil
}
