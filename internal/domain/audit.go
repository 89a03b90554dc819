package domain

import "time"

type AuditAction string

const (
	AuditCreated                AuditAction = "created"
	AuditApproved               AuditAction = "approved"
	AuditRejected               AuditAction = "rejected"
	AuditExecuted               AuditAction = "executed"
	AuditFailed                 AuditAction = "failed"
	AuditExpired                AuditAction = "expired"
	AuditRetryAttempted         AuditAction = "retry_attempted"
	AuditForceExecuteAuthorized AuditAction = "force_execute_authorized"
	AuditSubmissionUnconfirmed  AuditAction = "submission_unconfirmed"
)

// ActionFor maps a status transition to the audit action recorded for it.
func ActionFor(from, to RecoveryStatus) AuditAction {
	switch to {
	case RecoveryApproved:
		return AuditApproved
	case RecoveryRejected:
		return AuditRejected
	case RecoveryExecuted:
		return AuditExecuted
	case RecoveryExpired:
		return AuditExpired
	case RecoveryFailed:
		if from == RecoveryFailed {
			return AuditRetryAttempted
		}
		return AuditFailed
	}
	return AuditCreated
}

type RequestMeta struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditLogEntry struct {
	ID                string
	RecoveryRequestID string
	ActionType        AuditAction
	PerformedBy       string
	PerformedAt       time.Time
	Details           map[string]any
	RequestMeta       RequestMeta
}
