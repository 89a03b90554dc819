package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/mappers"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultSignerRepository struct {
	db *gorm.DB
}

func NewDefaultSignerRepository(db *gorm.DB) *DefaultSignerRepository {
	return &DefaultSignerRepository{db: db}
}

func (r *DefaultSignerRepository) GetWallet(ctx context.Context, walletID string) (*domain.CustodyWallet, error) {
	var model models.CustodyWalletModel
	if err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: custody wallet %s", domain.ErrNotFound, walletID)
		}
		return nil, err
	}
	return mappers.ToDomainWallet(&model), nil
}

func (r *DefaultSignerRepository) SaveWallet(ctx context.Context, wallet *domain.CustodyWallet) error {
	if err := wallet.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_key", "low_threshold", "medium_threshold", "high_threshold", "updated_at"}),
		}).
		Create(mappers.ToGORMWallet(wallet)).Error
}

func (r *DefaultSignerRepository) ListSigners(ctx context.Context, walletID string) ([]*domain.Signer, error) {
	var rows []models.SignerModel
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	signers := make([]*domain.Signer, len(rows))
	for i := range rows {
		signers[i] = mappers.ToDomainSigner(&rows[i])
	}
	return signers, nil
}

func (r *DefaultSignerRepository) AddSigner(ctx context.Context, signer *domain.Signer) error {
	if err := signer.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Omit("Wallet").Create(mappers.ToGORMSigner(signer)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: signer %s already exists", domain.ErrConflict, signer.ID)
	}
	return err
}
