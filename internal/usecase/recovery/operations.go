package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/google/uuid"
)

////////////////////// Transactional transitions //////////////////////////

// transition describes one read-validate-write-audit unit against a request.
type transition struct {
	operation string
	prev      *domain.RecoveryRequest
	next      *domain.RecoveryRequest
	actor     domain.Actor
	approval  *domain.Approval
	rotation  *domain.SignerRotation
	details   map[string]any
	// extra audit entries written ahead of the transition entry
	preAudit []*domain.AuditLogEntry
	// silent skips the transition audit entry; only used for marker bookkeeping
	// that does not change status.
	silent bool
	action domain.AuditAction
}

func (uc *DefaultRecoveryUsecase) commit(ctx context.Context, t *transition) error {
	entries := append([]*domain.AuditLogEntry{}, t.preAudit...)
	if !t.silent {
		action := t.action
		if action == "" {
			action = domain.ActionFor(t.prev.Status, t.next.Status)
		}
		entries = append(entries, uc.newAudit(t.next, action, t.actor, t.details))
	}

	err := uc.repo.Commit(ctx, &domain.Commit{
		Request:        t.next,
		ExpectedStatus: t.prev.Status,
		NewApproval:    t.approval,
		Audit:          entries,
		Rotation:       t.rotation,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			uc.metrics.RecordStaleState(t.operation)
		}
		return err
	}
	if t.prev.Status != t.next.Status {
		uc.metrics.RecordTransition(string(t.prev.Status), string(t.next.Status))
		uc.logger.Info("recovery request transitioned",
			"request_id", t.next.ID,
			"operation", t.operation,
			"from", t.prev.Status,
			"to", t.next.Status,
			"actor", t.actor.ID,
		)
	}
	return nil
}

func (uc *DefaultRecoveryUsecase) newAudit(req *domain.RecoveryRequest, action domain.AuditAction, actor domain.Actor, details map[string]any) *domain.AuditLogEntry {
	d := map[string]any{
		"status":             string(req.Status),
		"current_approvals":  req.CurrentApprovals(),
		"required_approvals": req.RequiredApprovals,
	}
	for k, v := range details {
		d[k] = v
	}
	return &domain.AuditLogEntry{
		ID:                uuid.NewString(),
		RecoveryRequestID: req.ID,
		ActionType:        action,
		PerformedBy:       actor.ID,
		PerformedAt:       uc.clock.Now(),
		Details:           d,
		RequestMeta:       actor.Meta,
	}
}

// load reads a request and expires it on the spot when its window has passed.
// The returned request is the current persisted state.
func (uc *DefaultRecoveryUsecase) load(ctx context.Context, requestID string) (*domain.RecoveryRequest, error) {
	req, err := uc.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	now := uc.clock.Now()
	if !expirable(req, now) {
		return req, nil
	}
	expired, err := uc.expire(ctx, req, now)
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return uc.repo.GetByID(ctx, requestID)
		}
		return nil, err
	}
	return expired, nil
}

func expirable(req *domain.RecoveryRequest, now time.Time) bool {
	switch req.Status {
	case domain.RecoveryPending, domain.RecoveryApproved, domain.RecoveryFailed:
	default:
		return false
	}
	return req.Expired(now) && !req.SubmissionInFlight()
}

func (uc *DefaultRecoveryUsecase) expire(ctx context.Context, req *domain.RecoveryRequest, now time.Time) (*domain.RecoveryRequest, error) {
	next := req.Clone()
	if err := next.Expire(now); err != nil {
		return nil, err
	}
	err := uc.commit(ctx, &transition{
		operation: "expire",
		prev:      req,
		next:      next,
		actor:     domain.SystemActor,
		details: map[string]any{
			"expires_at":  req.ExpiresAt.Format(time.RFC3339),
			"prev_status": string(req.Status),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("expire request %s: %w", req.ID, err)
	}
	uc.notify(ctx, next, domain.EventExpired, "")
	return next, nil
}

func (uc *DefaultRecoveryUsecase) notify(ctx context.Context, req *domain.RecoveryRequest, eventType domain.RecoveryEventType, reason string) {
	uc.notifier.Notify(context.WithoutCancel(ctx), domain.RecoveryEvent{
		Type:       eventType,
		RequestID:  req.ID,
		UserID:     req.UserID,
		WalletID:   req.WalletID,
		Status:     req.Status,
		Reason:     reason,
		ReceiptID:  req.ReceiptID,
		OccurredAt: uc.clock.Now(),
	})
}

func (uc *DefaultRecoveryUsecase) authorizeOwnerOrAdmin(actor domain.Actor, req *domain.RecoveryRequest) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if actor.IsAdmin() || actor.Role == domain.RoleSystem || actor.ID == req.UserID {
		return nil
	}
	return fmt.Errorf("%w: request belongs to another user", domain.ErrUnauthorized)
}

func viewOf(req *domain.RecoveryRequest) *domain.RecoveryView {
	v := req.View()
	return &v
}
