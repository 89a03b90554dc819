package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
)

// Reject is the administrator path: pending or approved requests become rejected.
func (uc *DefaultRecoveryUsecase) Reject(ctx context.Context, actor domain.Actor, input *recoverydto.RejectInput) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators may reject recoveries", domain.ErrUnauthorized)
	}
	return uc.reject(ctx, actor, input, "reject")
}

// Cancel lets the requesting user withdraw a request while it is still pending.
func (uc *DefaultRecoveryUsecase) Cancel(ctx context.Context, actor domain.Actor, input *recoverydto.RejectInput) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return uc.reject(ctx, actor, input, "cancel")
}

func (uc *DefaultRecoveryUsecase) reject(ctx context.Context, actor domain.Actor, input *recoverydto.RejectInput, operation string) (*domain.RecoveryView, error) {
	req, err := uc.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if operation == "cancel" {
		if actor.ID != req.UserID {
			return nil, fmt.Errorf("%w: only the requesting user may cancel", domain.ErrUnauthorized)
		}
		if req.Status != domain.RecoveryPending {
			return nil, fmt.Errorf("%w: only pending requests can be cancelled (status %s)", domain.ErrInvalidTransition, req.Status)
		}
	}
	if req.Status == domain.RecoveryExpired {
		return nil, domain.ErrExpired
	}
	if req.SubmissionInFlight() {
		return nil, fmt.Errorf("%w: ledger submission in flight", domain.ErrConflict)
	}

	next := req.Clone()
	if err := next.Reject(uc.clock.Now()); err != nil {
		return nil, err
	}
	err = uc.commit(ctx, &transition{
		operation: operation,
		prev:      req,
		next:      next,
		actor:     actor,
		details: map[string]any{
			"reason":    strings.TrimSpace(input.Reason),
			"cancelled": operation == "cancel",
		},
	})
	if err != nil {
		return nil, err
	}
	uc.notify(ctx, next, domain.EventRejected, input.Reason)
	return viewOf(next), nil
}
