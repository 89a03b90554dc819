package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
)

const publishTimeout = 10 * time.Second

// RecoveryNotifier publishes workflow events keyed by wallet, so events of
// one wallet stay ordered within a partition. Delivery is best effort.
type RecoveryNotifier struct {
	publisher domain.PublisherPort
	topic     string
	metrics   *metrics.RecoveryMetrics
	logger    *slog.Logger
}

func NewRecoveryNotifier(publisher domain.PublisherPort, topic string, recoveryMetrics *metrics.RecoveryMetrics, logger *slog.Logger) *RecoveryNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryNotifier{
		publisher: publisher,
		topic:     topic,
		metrics:   recoveryMetrics,
		logger:    logger.With("component", "notifier"),
	}
}

func (n *RecoveryNotifier) Notify(ctx context.Context, event domain.RecoveryEvent) {
	go func() {
		if err := n.publish(ctx, event); err != nil {
			n.metrics.RecordNotificationFailed(string(event.Type))
			n.logger.Warn("failed to publish recovery event",
				"event", event.Type,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}()
}

func (n *RecoveryNotifier) publish(ctx context.Context, event domain.RecoveryEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return n.publisher.Publish(ctx, n.topic, domain.Message{
		Key:   []byte(event.WalletID),
		Value: value,
	})
}
