package models

import "time"

type CustodyWalletModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index;not null"`
	AccountKey      string `gorm:"uniqueIndex;not null"`
	LowThreshold    int
	MediumThreshold int
	HighThreshold   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SignerModel struct {
	ID              string `gorm:"primaryKey"`
	WalletID        string `gorm:"index;not null"`
	PublicKey       string `gorm:"not null"`
	Weight          int
	Role            string `gorm:"not null"`
	Status          string `gorm:"index;not null"`
	EncryptedSecret string `gorm:"type:text"`
	Metadata        []byte `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Wallet CustodyWalletModel `gorm:"foreignKey:WalletID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
}
