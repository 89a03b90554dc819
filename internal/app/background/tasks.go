package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
)

// RecoveryRunner is the slice of the recovery workflow the scheduler drives.
type RecoveryRunner interface {
	Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error)
	Expire(ctx context.Context, requestID string) (*domain.RecoveryView, error)
	ReconcileSubmission(ctx context.Context, requestID string) (*domain.RecoveryView, error)
}

type Config struct {
	ExecutableInterval time.Duration
	ExpiryInterval     time.Duration
	RetentionInterval  time.Duration
	ReconcileInterval  time.Duration
	AuditRetention     time.Duration
	// RetryInterval is the minimum gap between automatic retries of a ledger failure.
	RetryInterval  time.Duration
	// MaxAutoRetries counts retries after the first failed attempt.
	MaxAutoRetries int
	Parallelism    int
	// SubmissionStaleAfter is how long a submission marker may sit before the
	// ledger is asked what became of it.
	SubmissionStaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExecutableInterval <= 0 {
		c.ExecutableInterval = 2 * time.Minute
	}
	if c.ExpiryInterval <= 0 {
		c.ExpiryInterval = time.Hour
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = 24 * time.Hour
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 5 * time.Minute
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 365 * 24 * time.Hour
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 15 * time.Minute
	}
	if c.MaxAutoRetries <= 0 {
		c.MaxAutoRetries = 3
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.SubmissionStaleAfter <= 0 {
		c.SubmissionStaleAfter = 10 * time.Minute
	}
	return c
}

// Scheduler runs the periodic sweeps: execution of due requests, expiry,
// reconciliation of stuck submissions and audit retention. Each sweep has its
// own ticker so a slow ledger never delays expiry.
type Scheduler struct {
	runner    RecoveryRunner
	repo      domain.RecoveryRepository
	retention domain.AuditRetention
	clock     domain.Clock
	metrics   *metrics.RecoveryMetrics
	logger    *slog.Logger
	cfg       Config

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	runner RecoveryRunner,
	repo domain.RecoveryRepository,
	retention domain.AuditRetention,
	clock domain.Clock,
	recoveryMetrics *metrics.RecoveryMetrics,
	logger *slog.Logger,
	cfg Config,
) *Scheduler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:    runner,
		repo:      repo,
		retention: retention,
		clock:     clock,
		metrics:   recoveryMetrics,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg.withDefaults(),
	}
}

// Start launches every sweep loop and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("starting recovery scheduler",
		"executable_interval", s.cfg.ExecutableInterval,
		"expiry_interval", s.cfg.ExpiryInterval,
		"reconcile_interval", s.cfg.ReconcileInterval,
		"retention_interval", s.cfg.RetentionInterval,
	)

	s.loop(ctx, "executable", s.cfg.ExecutableInterval, s.RunExecutableSweep)
	s.loop(ctx, "expiry", s.cfg.ExpiryInterval, s.RunExpirySweep)
	s.loop(ctx, "reconcile", s.cfg.ReconcileInterval, s.RunReconcileSweep)
	s.loop(ctx, "retention", s.cfg.RetentionInterval, s.RunRetentionSweep)
}

// Stop cancels the loops and waits for in-progress sweeps to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("recovery scheduler stopped")
}

// RunOnce performs a single pass of every sweep, in order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, sweep := range []func(context.Context) error{
		s.RunReconcileSweep,
		s.RunExpirySweep,
		s.RunExecutableSweep,
		s.RunRetentionSweep,
	} {
		if err := sweep(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				started := time.Now()
				if err := sweep(ctx); err != nil {
					s.logger.Error("sweep failed", "sweep", name, "error", err)
				}
				s.metrics.RecordSweep(name, time.Since(started).Seconds())
			}
		}
	}()
}
