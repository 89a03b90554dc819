package postgres

import (
	"fmt"

	"github.com/LavaJover/shvark-recovery-service/internal/config"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.RecoveryConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.RecoveryDB.Dsn), &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}

	if cfg.RecoveryDB.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrate creates the tables from the models. The SQL migrations remain
// the source of truth for the partial index on open requests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CustodyWalletModel{},
		&models.SignerModel{},
		&models.RecoveryRequestModel{},
		&models.RecoveryApprovalModel{},
		&models.RecoveryAuditLogModel{},
	)
}
