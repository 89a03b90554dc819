package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
)

// Approve records actor's approval. A repeated approval by the same admin, or
// one arriving after quorum, leaves the request untouched. Compare-and-set
// conflicts with other approvers are retried on a fresh read.
func (uc *DefaultRecoveryUsecase) Approve(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators may approve recoveries", domain.ErrUnauthorized)
	}

	for attempt := 1; ; attempt++ {
		view, err := uc.approveOnce(ctx, actor, requestID)
		if err == nil || !errors.Is(err, domain.ErrStaleState) || attempt >= uc.cfg.ApproveAttempts {
			return view, err
		}
		uc.logger.Debug("approval raced, re-reading", "request_id", requestID, "attempt", attempt)
	}
}

func (uc *DefaultRecoveryUsecase) approveOnce(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error) {
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == domain.RecoveryExpired {
		return nil, domain.ErrExpired
	}
	if actor.ID == req.UserID {
		return nil, fmt.Errorf("%w: requester cannot approve their own recovery", domain.ErrUnauthorized)
	}

	now := uc.clock.Now()
	next := req.Clone()
	added, reachedQuorum, err := next.Approve(actor.ID, now)
	if err != nil {
		return nil, err
	}
	if !added {
		outcome := "duplicate"
		if !req.Approvals.Has(actor.ID) {
			outcome = "late"
		}
		uc.metrics.RecordApproval(outcome)
		return viewOf(req), nil
	}

	err = uc.commit(ctx, &transition{
		operation: "approve",
		prev:      req,
		next:      next,
		actor:     actor,
		approval:  &domain.Approval{ApproverID: actor.ID, ApprovedAt: now},
		action:    domain.AuditApproved,
		details: map[string]any{
			"approver_id":    actor.ID,
			"quorum_reached": reachedQuorum,
		},
	})
	if err != nil {
		return nil, err
	}
	uc.metrics.RecordApproval("recorded")

	if reachedQuorum {
		uc.notify(ctx, next, domain.EventApproved, "")
	}
	return viewOf(next), nil
}
