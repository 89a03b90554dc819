package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
)

// CallbackNotifier pings an operator callback URL with the request id, status
// and event type as query parameters.
type CallbackNotifier struct {
	baseURL *url.URL
	client  *http.Client
	metrics *metrics.RecoveryMetrics
	logger  *slog.Logger
}

func NewCallbackNotifier(callbackURL string, recoveryMetrics *metrics.RecoveryMetrics, logger *slog.Logger) (*CallbackNotifier, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL %q: %w", callbackURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid callback URL %q: scheme must be http or https", callbackURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackNotifier{
		baseURL: parsed,
		client:  &http.Client{Timeout: 5 * time.Second},
		metrics: recoveryMetrics,
		logger:  logger.With("component", "callback_notifier"),
	}, nil
}

func (n *CallbackNotifier) Notify(ctx context.Context, event domain.RecoveryEvent) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := n.send(ctx, event); err != nil {
			n.metrics.RecordNotificationFailed(string(event.Type))
			n.logger.Warn("callback failed", "event", event.Type, "request_id", event.RequestID, "error", err)
		}
	}()
}

func (n *CallbackNotifier) send(ctx context.Context, event domain.RecoveryEvent) error {
	target := *n.baseURL
	query := target.Query()
	query.Set("id", event.RequestID)
	query.Set("status", string(event.Status))
	query.Set("event", string(event.Type))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %s", resp.Status)
	}
	n.logger.Debug("callback sent", "event", event.Type, "request_id", event.RequestID)
	return nil
}
