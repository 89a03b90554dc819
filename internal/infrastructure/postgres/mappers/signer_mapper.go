package mappers

import (
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/models"
)

func ToDomainWallet(model *models.CustodyWalletModel) *domain.CustodyWallet {
	return &domain.CustodyWallet{
		ID:         model.ID,
		UserID:     model.UserID,
		AccountKey: model.AccountKey,
		Thresholds: domain.Thresholds{
			Low:    model.LowThreshold,
			Medium: model.MediumThreshold,
			High:   model.HighThreshold,
		},
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func ToGORMWallet(wallet *domain.CustodyWallet) *models.CustodyWalletModel {
	return &models.CustodyWalletModel{
		ID:              wallet.ID,
		UserID:          wallet.UserID,
		AccountKey:      wallet.AccountKey,
		LowThreshold:    wallet.Thresholds.Low,
		MediumThreshold: wallet.Thresholds.Medium,
		HighThreshold:   wallet.Thresholds.High,
		CreatedAt:       wallet.CreatedAt,
		UpdatedAt:       wallet.UpdatedAt,
	}
}

func ToDomainSigner(model *models.SignerModel) *domain.Signer {
	return &domain.Signer{
		ID:              model.ID,
		WalletID:        model.WalletID,
		PublicKey:       model.PublicKey,
		Weight:          model.Weight,
		Role:            domain.SignerRole(model.Role),
		Status:          domain.SignerStatus(model.Status),
		EncryptedSecret: model.EncryptedSecret,
		Metadata:        decodeMetadata(model.Metadata),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func ToGORMSigner(signer *domain.Signer) *models.SignerModel {
	return &models.SignerModel{
		ID:              signer.ID,
		WalletID:        signer.WalletID,
		PublicKey:       signer.PublicKey,
		Weight:          signer.Weight,
		Role:            string(signer.Role),
		Status:          string(signer.Status),
		EncryptedSecret: signer.EncryptedSecret,
		Metadata:        encodeMetadata(signer.Metadata),
		CreatedAt:       signer.CreatedAt,
		UpdatedAt:       signer.UpdatedAt,
	}
}
