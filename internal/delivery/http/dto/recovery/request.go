package recovery

type CreateRecoveryRequest struct {
	UserID             string            `json:"user_id"`
	WalletID           string            `json:"wallet_id"`
	Reason             string            `json:"reason"`
	WaitingPeriodHours int               `json:"waiting_period_hours"`
	NewPublicKey       string            `json:"new_public_key,omitempty"`
	NewSecretKey       string            `json:"new_secret_key,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ForceExecuteRequest struct {
	Justification string `json:"justification"`
}

type ListQuery struct {
	Status   string `query:"status"`
	UserID   string `query:"user_id"`
	WalletID string `query:"wallet_id"`
	Page     int    `query:"page"`
	Limit    int    `query:"limit"`
}
