package models

import (
	"time"
)

type RecoveryRequestModel struct {
	ID                  string `gorm:"primaryKey"`
	UserID              string `gorm:"index;not null"`
	WalletID            string `gorm:"index;not null"`
	Reason              string
	Status              string `gorm:"index;not null"`
	WaitingPeriodHours  int
	ExecutableAfter     time.Time `gorm:"index"`
	ExpiresAt           time.Time `gorm:"index"`
	RequiredApprovals   int
	NewPublicKey        string
	EncryptedNewSecret  string `gorm:"type:text"`
	ExecutedBy          string
	ExecutedAt          *time.Time
	ReceiptID           string
	FailureReason       string
	FailureKind         string
	RetryCount          int
	LastRetryAt         *time.Time
	SubmissionID        string `gorm:"index"`
	SubmissionStartedAt *time.Time
	Forced              bool
	RequestedBy         string
	Metadata            []byte `gorm:"type:jsonb"`
	Version             int64  `gorm:"not null;default:0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Approvals []RecoveryApprovalModel `gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// RecoveryApprovalModel is keyed by (request, approver) so the database
// itself refuses a second approval from the same administrator.
type RecoveryApprovalModel struct {
	RequestID  string `gorm:"primaryKey"`
	ApproverID string `gorm:"primaryKey"`
	ApprovedAt time.Time
}

type RecoveryAuditLogModel struct {
	ID                string `gorm:"primaryKey"`
	RecoveryRequestID string `gorm:"index;not null"`
	ActionType        string `gorm:"not null"`
	PerformedBy       string
	PerformedAt       time.Time `gorm:"index"`
	Details           []byte    `gorm:"type:jsonb"`
	IPAddress         string
	UserAgent         string
}
