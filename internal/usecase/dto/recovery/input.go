package recoverydto

import "github.com/LavaJover/shvark-recovery-service/internal/domain"

type RequestRecoveryInput struct {
	UserID             string
	WalletID           string
	Reason             string
	WaitingPeriodHours int
	// NewPublicKey and NewSecretKey are optional; when both are empty the
	// service generates the replacement keypair itself.
	NewPublicKey string
	NewSecretKey []byte
	Metadata     map[string]string
}

type RejectInput struct {
	RequestID string
	Reason    string
}

type ForceExecuteInput struct {
	RequestID     string
	Justification string
}

type ListRequestsInput struct {
	Status   *domain.RecoveryStatus
	UserID   *string
	WalletID *string
	Page     int
	Limit    int
}
