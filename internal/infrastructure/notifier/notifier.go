package notifier

import (
	"context"
	"log/slog"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
)

// LogNotifier records events in the service log. It is used when no broker
// is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, event domain.RecoveryEvent) {
	n.logger.InfoContext(ctx, "recovery event",
		"event", event.Type,
		"request_id", event.RequestID,
		"wallet_id", event.WalletID,
		"status", event.Status,
		"reason", event.Reason,
	)
}

// Fanout delivers every event to each of its notifiers.
type Fanout []domain.Notifier

func (f Fanout) Notify(ctx context.Context, event domain.RecoveryEvent) {
	for _, n := range f {
		n.Notify(ctx, event)
	}
}
