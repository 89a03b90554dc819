package background

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SelectExecutable returns approved requests whose time-lock has passed and
// which have not expired, oldest window first.
func SelectExecutable(requests []*domain.RecoveryRequest, now time.Time) []*domain.RecoveryRequest {
	var out []*domain.RecoveryRequest
	for _, req := range requests {
		if req.Status != domain.RecoveryApproved || req.SubmissionInFlight() {
			continue
		}
		if req.QuorumMet() && req.InExecutableWindow(now) {
			out = append(out, req)
		}
	}
	sortByExecutableAfter(out)
	return out
}

// SelectRetryable returns ledger failures due for another automatic attempt.
// RetryCount includes the first failed attempt, so maxRetries automatic
// retries are allowed after it. Encryption and business failures need a person.
func SelectRetryable(requests []*domain.RecoveryRequest, now time.Time, retryInterval time.Duration, maxRetries int) []*domain.RecoveryRequest {
	var out []*domain.RecoveryRequest
	for _, req := range requests {
		if req.Status != domain.RecoveryFailed || req.SubmissionInFlight() {
			continue
		}
		if req.FailureKind != domain.FailureLedger || req.RetryCount > maxRetries {
			continue
		}
		if req.Expired(now) {
			continue
		}
		if req.LastRetryAt != nil && now.Before(req.LastRetryAt.Add(retryInterval)) {
			continue
		}
		out = append(out, req)
	}
	sortByExecutableAfter(out)
	return out
}

// SelectExpired returns non-terminal requests past their expiry instant.
// Requests with a submission in flight are left for reconciliation.
func SelectExpired(requests []*domain.RecoveryRequest, now time.Time) []*domain.RecoveryRequest {
	var out []*domain.RecoveryRequest
	for _, req := range requests {
		switch req.Status {
		case domain.RecoveryPending, domain.RecoveryApproved, domain.RecoveryFailed:
		default:
			continue
		}
		if req.Expired(now) && !req.SubmissionInFlight() {
			out = append(out, req)
		}
	}
	return out
}

// SelectStaleSubmissions returns requests whose submission marker is older
// than staleAfter.
func SelectStaleSubmissions(requests []*domain.RecoveryRequest, now time.Time, staleAfter time.Duration) []*domain.RecoveryRequest {
	var out []*domain.RecoveryRequest
	for _, req := range requests {
		if !req.SubmissionInFlight() || req.SubmissionStartedAt == nil {
			continue
		}
		if !now.Before(req.SubmissionStartedAt.Add(staleAfter)) {
			out = append(out, req)
		}
	}
	return out
}

func sortByExecutableAfter(reqs []*domain.RecoveryRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].ExecutableAfter.Before(reqs[j].ExecutableAfter)
	})
}

// RunExecutableSweep executes every due request and every retryable ledger
// failure, at most Parallelism at a time. One request failing does not stop
// the others.
func (s *Scheduler) RunExecutableSweep(ctx context.Context) error {
	candidates, err := s.repo.ListByStatus(ctx, domain.RecoveryApproved, domain.RecoveryFailed)
	if err != nil {
		return fmt.Errorf("list executable requests: %w", err)
	}
	now := s.clock.Now()
	due := SelectExecutable(candidates, now)
	due = append(due, SelectRetryable(candidates, now, s.cfg.RetryInterval, s.cfg.MaxAutoRetries)...)
	if len(due) == 0 {
		return nil
	}
	s.logger.Info("executing due recovery requests", "count", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, req := range due {
		id := req.ID
		g.Go(func() error {
			_, err := s.runner.Execute(gctx, domain.SystemActor, id)
			s.record("executable", id, err)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) RunExpirySweep(ctx context.Context) error {
	candidates, err := s.repo.ListByStatus(ctx, domain.RecoveryPending, domain.RecoveryApproved, domain.RecoveryFailed)
	if err != nil {
		return fmt.Errorf("list expirable requests: %w", err)
	}
	expired := SelectExpired(candidates, s.clock.Now())
	for _, req := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.runner.Expire(ctx, req.ID)
		s.record("expiry", req.ID, err)
	}
	if len(expired) > 0 {
		s.logger.Info("expiry sweep finished", "expired", len(expired))
	}
	return nil
}

func (s *Scheduler) RunReconcileSweep(ctx context.Context) error {
	candidates, err := s.repo.ListByStatus(ctx, domain.RecoveryPending, domain.RecoveryApproved, domain.RecoveryFailed)
	if err != nil {
		return fmt.Errorf("list in-flight submissions: %w", err)
	}
	for _, req := range SelectStaleSubmissions(candidates, s.clock.Now(), s.cfg.SubmissionStaleAfter) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.runner.ReconcileSubmission(ctx, req.ID)
		s.record("reconcile", req.ID, err)
	}
	return nil
}

// RunRetentionSweep purges audit entries of closed requests older than the
// retention period.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) error {
	if s.retention == nil {
		return nil
	}
	cutoff := s.clock.Now().Add(-s.cfg.AuditRetention)
	n, err := s.retention.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge audit log: %w", err)
	}
	s.metrics.RecordAuditPurged(n)
	if n > 0 {
		s.logger.Info("audit retention purged entries", "count", n, "cutoff", cutoff)
	}
	return nil
}

func (s *Scheduler) record(sweep, requestID string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLedgerSubmission), errors.Is(err, domain.ErrEncryption):
		result = "failed"
		s.logger.Warn("scheduled execution failed", "request_id", requestID, "error", err)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrTimeLocked), errors.Is(err, domain.ErrQuorumNotMet):
		result = "skipped"
		s.logger.Debug("sweep item skipped", "sweep", sweep, "request_id", requestID, "reason", err)
	default:
		result = "error"
		s.logger.Error("sweep item failed", "sweep", sweep, "request_id", requestID, "error", err)
	}
	s.metrics.RecordSweepItem(sweep, result)
}
