package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/mappers"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
)

type DefaultRecoveryRepository struct {
	db *gorm.DB
}

func NewDefaultRecoveryRepository(db *gorm.DB) *DefaultRecoveryRepository {
	return &DefaultRecoveryRepository{db: db}
}

func (r *DefaultRecoveryRepository) Create(ctx context.Context, req *domain.RecoveryRequest, audit *domain.AuditLogEntry) error {
	model := mappers.ToGORMRecoveryRequest(req)
	model.Version = 1
	auditModel, err := mappers.ToGORMAuditEntry(audit)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The partial unique index on open requests is the real guard; this
		// check only produces a friendlier error in the common case.
		var open int64
		if err := tx.Model(&models.RecoveryRequestModel{}).
			Where("wallet_id = ? AND status IN ?", req.WalletID, openStatuses()).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrDuplicateRequest
		}
		if err := tx.Omit("Approvals").Create(model).Error; err != nil {
			return err
		}
		return tx.Create(auditModel).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateRequest
		}
		return err
	}
	req.Version = model.Version
	return nil
}

func (r *DefaultRecoveryRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryRequest, error) {
	var model models.RecoveryRequestModel
	err := r.db.WithContext(ctx).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("approved_at ASC") }).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: recovery request %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return mappers.ToDomainRecoveryRequest(&model), nil
}

func (r *DefaultRecoveryRepository) FindOpen(ctx context.Context, userID, walletID string) (*domain.RecoveryRequest, error) {
	var model models.RecoveryRequestModel
	err := r.db.WithContext(ctx).
		Preload("Approvals").
		Where("user_id = ? AND wallet_id = ? AND status IN ?", userID, walletID, openStatuses()).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no open request for wallet %s", domain.ErrNotFound, walletID)
		}
		return nil, err
	}
	return mappers.ToDomainRecoveryRequest(&model), nil
}

func (r *DefaultRecoveryRepository) List(ctx context.Context, filter domain.RecoveryFilter) ([]*domain.RecoveryRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.RecoveryRequestModel{})

	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var rows []models.RecoveryRequestModel
	if err := query.
		Preload("Approvals").
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	requests := make([]*domain.RecoveryRequest, len(rows))
	for i := range rows {
		requests[i] = mappers.ToDomainRecoveryRequest(&rows[i])
	}
	return requests, total, nil
}

func (r *DefaultRecoveryRepository) ListByStatus(ctx context.Context, statuses ...domain.RecoveryStatus) ([]*domain.RecoveryRequest, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	var rows []models.RecoveryRequestModel
	if err := r.db.WithContext(ctx).
		Preload("Approvals").
		Where("status IN ?", values).
		Order("executable_after ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	requests := make([]*domain.RecoveryRequest, len(rows))
	for i := range rows {
		requests[i] = mappers.ToDomainRecoveryRequest(&rows[i])
	}
	return requests, nil
}

// Commit writes the request row guarded by version and status, then the
// approval, audit and signer rows, all in one transaction.
func (r *DefaultRecoveryRepository) Commit(ctx context.Context, c *domain.Commit) error {
	req := c.Request
	model := mappers.ToGORMRecoveryRequest(req)
	nextVersion := req.Version + 1

	audit := make([]*models.RecoveryAuditLogModel, 0, len(c.Audit))
	for _, entry := range c.Audit {
		m, err := mappers.ToGORMAuditEntry(entry)
		if err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
		audit = append(audit, m)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RecoveryRequestModel{}).
			Where("id = ? AND version = ? AND status = ?", req.ID, req.Version, string(c.ExpectedStatus)).
			Updates(map[string]any{
				"status":                model.Status,
				"executed_by":           model.ExecutedBy,
				"executed_at":           model.ExecutedAt,
				"receipt_id":            model.ReceiptID,
				"failure_reason":        model.FailureReason,
				"failure_kind":          model.FailureKind,
				"retry_count":           model.RetryCount,
				"last_retry_at":         model.LastRetryAt,
				"submission_id":         model.SubmissionID,
				"submission_started_at": model.SubmissionStartedAt,
				"forced":                model.Forced,
				"metadata":              model.Metadata,
				"version":               nextVersion,
				"updated_at":            model.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrStaleState
		}

		if c.NewApproval != nil {
			if err := tx.Create(mappers.ToGORMApproval(req.ID, c.NewApproval)).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return domain.ErrStaleState
				}
				return err
			}
		}
		if len(audit) > 0 {
			if err := tx.Create(&audit).Error; err != nil {
				return fmt.Errorf("write audit log: %w", err)
			}
		}
		if c.Rotation != nil {
			if err := applyRotation(tx, c.Rotation); err != nil {
				return fmt.Errorf("apply signer rotation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	req.Version = nextVersion
	return nil
}

func applyRotation(tx *gorm.DB, rotation *domain.SignerRotation) error {
	old := mappers.ToGORMSigner(rotation.OldSigner)
	res := tx.Model(&models.SignerModel{}).
		Where("id = ? AND status = ?", old.ID, string(domain.SignerActive)).
		Updates(map[string]any{
			"status":     old.Status,
			"metadata":   old.Metadata,
			"updated_at": old.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: signer %s is no longer active", domain.ErrConflict, old.ID)
	}
	return tx.Omit("Wallet").Create(mappers.ToGORMSigner(rotation.NewSigner)).Error
}

// PurgeBefore deletes audit entries older than cutoff whose request is closed.
func (r *DefaultRecoveryRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	closed := r.db.Model(&models.RecoveryRequestModel{}).
		Select("id").
		Where("status IN ?", []string{
			string(domain.RecoveryExecuted),
			string(domain.RecoveryRejected),
			string(domain.RecoveryExpired),
		})
	res := r.db.WithContext(ctx).
		Where("performed_at < ? AND recovery_request_id IN (?)", cutoff, closed).
		Delete(&models.RecoveryAuditLogModel{})
	return res.RowsAffected, res.Error
}

func (r *DefaultRecoveryRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.AuditLogEntry, error) {
	var rows []models.RecoveryAuditLogModel
	if err := r.db.WithContext(ctx).
		Where("recovery_request_id = ?", requestID).
		Order("performed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*domain.AuditLogEntry, len(rows))
	for i := range rows {
		entries[i] = mappers.ToDomainAuditEntry(&rows[i])
	}
	return entries, nil
}

func openStatuses() []string {
	return []string{string(domain.RecoveryPending), string(domain.RecoveryApproved)}
}
