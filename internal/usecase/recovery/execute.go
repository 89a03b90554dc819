package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	"github.com/LavaJover/shvark-recovery-service/internal/usecase/executor"
	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
)

type executeOptions struct {
	force         bool
	justification string
	// manual retries may re-run failures the scheduler leaves alone
	manual bool
}

// Execute runs an approved (or previously failed) request through the ledger.
// It is the scheduler's entry point; quorum and time-lock are enforced.
func (uc *DefaultRecoveryUsecase) Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleSystem && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: execution requires an administrator", domain.ErrUnauthorized)
	}
	return uc.executeSerialized(ctx, actor, requestID, executeOptions{manual: actor.Role != domain.RoleSystem})
}

// RetryFailed is the manual retry of a failed request.
func (uc *DefaultRecoveryUsecase) RetryFailed(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators may retry recoveries", domain.ErrUnauthorized)
	}
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RecoveryFailed {
		if req.Status == domain.RecoveryExpired {
			return nil, domain.ErrExpired
		}
		return nil, fmt.Errorf("%w: only failed requests can be retried (status %s)", domain.ErrInvalidTransition, req.Status)
	}
	return uc.executeSerialized(ctx, actor, requestID, executeOptions{manual: true})
}

// ForceExecute bypasses quorum and time-lock. It needs the security officer
// role, a written justification and the feature switched on; the expiry
// bound still applies.
func (uc *DefaultRecoveryUsecase) ForceExecute(ctx context.Context, actor domain.Actor, input *recoverydto.ForceExecuteInput) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !uc.cfg.ForceExecuteEnabled {
		return nil, domain.ErrForceExecuteDisabled
	}
	if actor.Role != domain.RoleSecurityOfficer {
		return nil, fmt.Errorf("%w: force execute requires the %s role", domain.ErrUnauthorized, domain.RoleSecurityOfficer)
	}
	justification := strings.TrimSpace(input.Justification)
	if len(justification) < minJustificationLength {
		return nil, fmt.Errorf("%w: justification must be at least %d characters", domain.ErrValidation, minJustificationLength)
	}
	return uc.executeSerialized(ctx, actor, input.RequestID, executeOptions{
		force:         true,
		justification: justification,
		manual:        true,
	})
}

func (uc *DefaultRecoveryUsecase) executeSerialized(ctx context.Context, actor domain.Actor, requestID string, opts executeOptions) (*domain.RecoveryView, error) {
	v, err, _ := uc.inflight.Do(requestID, func() (any, error) {
		return uc.execute(ctx, actor, requestID, opts)
	})
	// A recorded ledger failure comes back with both the view and the error.
	view, _ := v.(*domain.RecoveryView)
	return view, err
}

func (uc *DefaultRecoveryUsecase) execute(ctx context.Context, actor domain.Actor, requestID string, opts executeOptions) (*domain.RecoveryView, error) {
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := uc.checkExecutable(req, opts); err != nil {
		return nil, err
	}

	// 1. Persist the in-flight marker. The compare-and-set makes this process
	// the only submitter for the request.
	marked, err := uc.beginSubmission(ctx, actor, req, opts)
	if err != nil {
		return nil, err
	}

	// 2. Ledger call, outside of any transaction or lock.
	result, err := uc.executor.Execute(ctx, marked)
	if err != nil {
		uc.abandonSubmission(ctx, marked)
		return nil, fmt.Errorf("execute request %s: %w", requestID, err)
	}

	// 3. Record the outcome together with its audit entry.
	return uc.recordOutcome(ctx, actor, marked, result)
}

func (uc *DefaultRecoveryUsecase) checkExecutable(req *domain.RecoveryRequest, opts executeOptions) error {
	now := uc.clock.Now()
	switch req.Status {
	case domain.RecoveryApproved:
	case domain.RecoveryFailed:
		if !opts.manual && req.FailureKind != domain.FailureLedger {
			return fmt.Errorf("%w: %s failures are not retried automatically", domain.ErrInvalidTransition, req.FailureKind)
		}
	case domain.RecoveryPending:
		if !opts.force {
			return fmt.Errorf("%w: %d/%d approvals", domain.ErrQuorumNotMet,
				req.CurrentApprovals(), req.RequiredApprovals)
		}
	case domain.RecoveryExpired:
		return domain.ErrExpired
	default:
		return fmt.Errorf("%w: cannot execute %s request", domain.ErrInvalidTransition, req.Status)
	}
	if req.Expired(now) {
		return domain.ErrExpired
	}
	if req.SubmissionInFlight() {
		return fmt.Errorf("%w: submission %s awaiting reconciliation", domain.ErrConflict, req.SubmissionID)
	}
	if opts.force {
		return nil
	}
	if !req.QuorumMet() {
		return domain.ErrQuorumNotMet
	}
	if !req.TimeLockPassed(now) {
		return fmt.Errorf("%w: executable after %s", domain.ErrTimeLocked, req.ExecutableAfter.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func (uc *DefaultRecoveryUsecase) beginSubmission(ctx context.Context, actor domain.Actor, req *domain.RecoveryRequest, opts executeOptions) (*domain.RecoveryRequest, error) {
	idGenerator, err := nanoid.Standard(21)
	if err != nil {
		return nil, err
	}
	now := uc.clock.Now()
	next := req.Clone()
	if opts.force {
		next.Forced = true
	}
	if err := next.BeginSubmission(idGenerator(), now); err != nil {
		return nil, err
	}

	t := &transition{
		operation: "begin_submission",
		prev:      req,
		next:      next,
		actor:     actor,
		silent:    true,
	}
	if opts.force {
		t.preAudit = []*domain.AuditLogEntry{uc.newAudit(next, domain.AuditForceExecuteAuthorized, actor, map[string]any{
			"justification":      opts.justification,
			"bypassed_quorum":    !req.QuorumMet(),
			"bypassed_time_lock": !req.TimeLockPassed(now),
			"submission_id":      next.SubmissionID,
		})}
	}
	if err := uc.commit(ctx, t); err != nil {
		return nil, err
	}
	if opts.force {
		uc.metrics.RecordForceExecution()
		uc.logger.Warn("force execute authorized",
			"request_id", req.ID,
			"actor", actor.ID,
			"submission_id", next.SubmissionID,
		)
	}
	return next, nil
}

// abandonSubmission clears the marker when nothing reached the ledger.
func (uc *DefaultRecoveryUsecase) abandonSubmission(ctx context.Context, marked *domain.RecoveryRequest) {
	next := marked.Clone()
	next.ClearSubmission(uc.clock.Now())
	err := uc.commit(context.WithoutCancel(ctx), &transition{
		operation: "abandon_submission",
		prev:      marked,
		next:      next,
		actor:     domain.SystemActor,
		silent:    true,
	})
	if err != nil {
		uc.logger.Error("failed to clear submission marker", "request_id", marked.ID, "error", err)
	}
}

func (uc *DefaultRecoveryUsecase) recordOutcome(ctx context.Context, actor domain.Actor, marked *domain.RecoveryRequest, result *executor.Result) (*domain.RecoveryView, error) {
	if result.Unconfirmed {
		return uc.holdSubmission(ctx, actor, marked, result)
	}
	now := uc.clock.Now()
	next := marked.Clone()
	details := map[string]any{
		"submission_id": marked.SubmissionID,
		"forced":        marked.Forced,
	}
	t := &transition{
		operation: "execute",
		prev:      marked,
		next:      next,
		actor:     actor,
		details:   details,
	}

	var event domain.RecoveryEventType
	if result.Success {
		if err := next.MarkExecuted(actor.ID, result.ReceiptID, now); err != nil {
			return nil, err
		}
		t.rotation = domain.NewSignerRotation(result.OldSigner, uuid.NewString(), next.NewPublicKey, next.ID, result.ReceiptID, now)
		details["receipt_id"] = result.ReceiptID
		details["old_public_key"] = result.OldSigner.PublicKey
		details["new_public_key"] = next.NewPublicKey
		details["retry_count"] = next.RetryCount
		event = domain.EventExecuted
	} else {
		if err := next.MarkFailed(result.Reason, result.Kind, now); err != nil {
			return nil, err
		}
		details["failure_reason"] = result.Reason
		details["failure_kind"] = string(result.Kind)
		details["retry_count"] = next.RetryCount
		event = domain.EventFailed
	}
	uc.metrics.RecordExecution(result.Success, string(result.Kind))

	// The ledger outcome is already final; record it even if the caller went away.
	if err := uc.commit(context.WithoutCancel(ctx), t); err != nil {
		// The marker stays in place so reconciliation inspects the ledger
		// before anyone submits again.
		uc.logger.Error("failed to record execution outcome",
			"request_id", marked.ID,
			"submission_id", marked.SubmissionID,
			"success", result.Success,
			"error", err,
		)
		return nil, fmt.Errorf("record outcome for %s: %w", marked.ID, err)
	}

	uc.notify(ctx, next, event, result.Reason)
	if !result.Success {
		return viewOf(next), executionError(result)
	}
	return viewOf(next), nil
}

// holdSubmission records an attempt whose ledger outcome is unknown. Status,
// retry count and the submission marker stay as they are, so nothing is sent
// again until reconciliation has looked the submission up.
func (uc *DefaultRecoveryUsecase) holdSubmission(ctx context.Context, actor domain.Actor, marked *domain.RecoveryRequest, result *executor.Result) (*domain.RecoveryView, error) {
	next := marked.Clone()
	next.UpdatedAt = uc.clock.Now()
	uc.metrics.RecordExecution(false, "unconfirmed")
	uc.logger.Warn("ledger outcome unknown, holding submission for reconciliation",
		"request_id", marked.ID,
		"submission_id", marked.SubmissionID,
		"reason", result.Reason,
	)
	err := uc.commit(context.WithoutCancel(ctx), &transition{
		operation: "hold_submission",
		prev:      marked,
		next:      next,
		actor:     actor,
		action:    domain.AuditSubmissionUnconfirmed,
		details: map[string]any{
			"submission_id": marked.SubmissionID,
			"reason":        result.Reason,
		},
	})
	if err != nil {
		uc.logger.Error("failed to record unconfirmed submission", "request_id", marked.ID, "error", err)
	}
	return viewOf(next), fmt.Errorf("%w: %s; awaiting reconciliation of submission %s",
		domain.ErrLedgerSubmission, result.Reason, marked.SubmissionID)
}

// executionError is returned next to the view of a request that was just
// recorded as failed.
func executionError(result *executor.Result) error {
	if result.Kind == domain.FailureEncryption {
		return fmt.Errorf("%w: %s", domain.ErrEncryption, result.Reason)
	}
	return fmt.Errorf("%w: %s", domain.ErrLedgerSubmission, result.Reason)
}

// ReconcileSubmission resolves a submission marker left behind by an
// interrupted execution. The ledger is asked whether the submission applied;
// only a definite "no" clears the marker for a fresh attempt.
func (uc *DefaultRecoveryUsecase) ReconcileSubmission(ctx context.Context, requestID string) (*domain.RecoveryView, error) {
	v, err, _ := uc.inflight.Do(requestID, func() (any, error) {
		return uc.reconcile(ctx, requestID)
	})
	view, _ := v.(*domain.RecoveryView)
	return view, err
}

func (uc *DefaultRecoveryUsecase) reconcile(ctx context.Context, requestID string) (*domain.RecoveryView, error) {
	req, err := uc.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.SubmissionInFlight() {
		return viewOf(req), nil
	}

	receipt, applied, err := uc.executor.Reconcile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lookup submission %s: %w", req.SubmissionID, err)
	}
	if !applied {
		uc.logger.Info("submission not found on ledger, clearing marker",
			"request_id", req.ID,
			"submission_id", req.SubmissionID,
		)
		next := req.Clone()
		next.ClearSubmission(uc.clock.Now())
		if err := uc.commit(ctx, &transition{
			operation: "reconcile",
			prev:      req,
			next:      next,
			actor:     domain.SystemActor,
			silent:    true,
		}); err != nil {
			return nil, err
		}
		return viewOf(next), nil
	}

	old, err := uc.executor.CurrentUserSigner(ctx, req.WalletID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: submission %s applied but no active user signer to retire", domain.ErrConflict, req.SubmissionID)
		}
		return nil, err
	}
	uc.logger.Warn("recording execution recovered from ledger",
		"request_id", req.ID,
		"submission_id", req.SubmissionID,
		"receipt_id", receipt.ReceiptID,
	)
	return uc.recordOutcome(ctx, domain.SystemActor, req, &executor.Result{
		Success:   true,
		ReceiptID: receipt.ReceiptID,
		OldSigner: old,
	})
}
