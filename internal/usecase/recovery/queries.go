package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Expire moves an overdue request to expired. Requests that are not overdue,
// already terminal, or waiting on a ledger submission are returned unchanged.
func (uc *DefaultRecoveryUsecase) Expire(ctx context.Context, requestID string) (*domain.RecoveryView, error) {
	req, err := uc.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	now := uc.clock.Now()
	if !expirable(req, now) {
		return viewOf(req), nil
	}
	expired, err := uc.expire(ctx, req, now)
	if err != nil {
		return nil, err
	}
	return viewOf(expired), nil
}

func (uc *DefaultRecoveryUsecase) GetStatus(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	req, err := uc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorizeOwnerOrAdmin(actor, req); err != nil {
		return nil, err
	}
	return viewOf(req), nil
}

// ListRequests pages through requests. Plain users only ever see their own.
func (uc *DefaultRecoveryUsecase) ListRequests(ctx context.Context, actor domain.Actor, input *recoverydto.ListRequestsInput) (*recoverydto.ListRequestsOutput, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *input.Status)
	}

	page, limit := input.Page, input.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := domain.RecoveryFilter{
		Status:   input.Status,
		UserID:   input.UserID,
		WalletID: input.WalletID,
		Page:     page,
		Limit:    limit,
	}
	if actor.Role == domain.RoleUser {
		own := actor.ID
		filter.UserID = &own
	}

	requests, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]domain.RecoveryView, 0, len(requests))
	for _, req := range requests {
		views = append(views, req.View())
	}

	totalPages := int32(total) / int32(limit)
	if int32(total)%int32(limit) > 0 {
		totalPages++
	}

	return &recoverydto.ListRequestsOutput{
		Requests: views,
		Pagination: recoverydto.Pagination{
			CurrentPage:  int32(page),
			TotalPages:   totalPages,
			TotalItems:   int32(total),
			ItemsPerPage: int32(limit),
		},
	}, nil
}

func (uc *DefaultRecoveryUsecase) GetAuditLog(ctx context.Context, actor domain.Actor, requestID string) (*recoverydto.AuditLogOutput, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	req, err := uc.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorizeOwnerOrAdmin(actor, req); err != nil {
		return nil, err
	}

	entries, err := uc.audit.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	out := &recoverydto.AuditLogOutput{
		RequestID: requestID,
		Entries:   make([]recoverydto.AuditEntryOutput, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, recoverydto.AuditEntryOutput{
			ID:          e.ID,
			ActionType:  e.ActionType,
			PerformedBy: e.PerformedBy,
			PerformedAt: e.PerformedAt.UTC().Format(time.RFC3339),
			Details:     e.Details,
			RequestMeta: e.RequestMeta,
		})
	}
	return out, nil
}
