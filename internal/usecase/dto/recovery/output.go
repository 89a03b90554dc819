package recoverydto

import "github.com/LavaJover/shvark-recovery-service/internal/domain"

type Pagination struct {
	CurrentPage  int32 `json:"current_page"`
	TotalPages   int32 `json:"total_pages"`
	TotalItems   int32 `json:"total_items"`
	ItemsPerPage int32 `json:"items_per_page"`
}

type ListRequestsOutput struct {
	Requests   []domain.RecoveryView `json:"requests"`
	Pagination Pagination            `json:"pagination"`
}

type AuditEntryOutput struct {
	ID          string             `json:"id"`
	ActionType  domain.AuditAction `json:"action_type"`
	PerformedBy string             `json:"performed_by"`
	PerformedAt string             `json:"performed_at"`
	Details     map[string]any     `json:"details,omitempty"`
	RequestMeta domain.RequestMeta `json:"request_meta"`
}

type AuditLogOutput struct {
	RequestID string             `json:"request_id"`
	Entries   []AuditEntryOutput `json:"entries"`
}
