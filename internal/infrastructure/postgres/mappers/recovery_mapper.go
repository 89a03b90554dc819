package mappers

import (
	"encoding/json"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/models"
)

func ToDomainRecoveryRequest(model *models.RecoveryRequestModel) *domain.RecoveryRequest {
	approvals := make([]domain.Approval, 0, len(model.Approvals))
	for _, a := range model.Approvals {
		approvals = append(approvals, domain.Approval{ApproverID: a.ApproverID, ApprovedAt: a.ApprovedAt})
	}
	return &domain.RecoveryRequest{
		ID:                  model.ID,
		UserID:              model.UserID,
		WalletID:            model.WalletID,
		Reason:              model.Reason,
		Status:              domain.RecoveryStatus(model.Status),
		WaitingPeriodHours:  model.WaitingPeriodHours,
		ExecutableAfter:     model.ExecutableAfter,
		ExpiresAt:           model.ExpiresAt,
		RequiredApprovals:   model.RequiredApprovals,
		Approvals:           domain.NewApprovalSet(approvals...),
		NewPublicKey:        model.NewPublicKey,
		EncryptedNewSecret:  model.EncryptedNewSecret,
		ExecutedBy:          model.ExecutedBy,
		ExecutedAt:          model.ExecutedAt,
		ReceiptID:           model.ReceiptID,
		FailureReason:       model.FailureReason,
		FailureKind:         domain.FailureKind(model.FailureKind),
		RetryCount:          model.RetryCount,
		LastRetryAt:         model.LastRetryAt,
		SubmissionID:        model.SubmissionID,
		SubmissionStartedAt: model.SubmissionStartedAt,
		Forced:              model.Forced,
		RequestedBy:         model.RequestedBy,
		Metadata:            decodeMetadata(model.Metadata),
		Version:             model.Version,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

// ToGORMRecoveryRequest maps the request row only; approvals are written as
// separate rows.
func ToGORMRecoveryRequest(req *domain.RecoveryRequest) *models.RecoveryRequestModel {
	return &models.RecoveryRequestModel{
		ID:                  req.ID,
		UserID:              req.UserID,
		WalletID:            req.WalletID,
		Reason:              req.Reason,
		Status:              string(req.Status),
		WaitingPeriodHours:  req.WaitingPeriodHours,
		ExecutableAfter:     req.ExecutableAfter,
		ExpiresAt:           req.ExpiresAt,
		RequiredApprovals:   req.RequiredApprovals,
		NewPublicKey:        req.NewPublicKey,
		EncryptedNewSecret:  req.EncryptedNewSecret,
		ExecutedBy:          req.ExecutedBy,
		ExecutedAt:          req.ExecutedAt,
		ReceiptID:           req.ReceiptID,
		FailureReason:       req.FailureReason,
		FailureKind:         string(req.FailureKind),
		RetryCount:          req.RetryCount,
		LastRetryAt:         req.LastRetryAt,
		SubmissionID:        req.SubmissionID,
		SubmissionStartedAt: req.SubmissionStartedAt,
		Forced:              req.Forced,
		RequestedBy:         req.RequestedBy,
		Metadata:            encodeMetadata(req.Metadata),
		Version:             req.Version,
		CreatedAt:           req.CreatedAt,
		UpdatedAt:           req.UpdatedAt,
	}
}

func ToGORMApproval(requestID string, a *domain.Approval) *models.RecoveryApprovalModel {
	return &models.RecoveryApprovalModel{
		RequestID:  requestID,
		ApproverID: a.ApproverID,
		ApprovedAt: a.ApprovedAt,
	}
}

func ToDomainAuditEntry(model *models.RecoveryAuditLogModel) *domain.AuditLogEntry {
	var details map[string]any
	if len(model.Details) > 0 {
		_ = json.Unmarshal(model.Details, &details)
	}
	return &domain.AuditLogEntry{
		ID:                model.ID,
		RecoveryRequestID: model.RecoveryRequestID,
		ActionType:        domain.AuditAction(model.ActionType),
		PerformedBy:       model.PerformedBy,
		PerformedAt:       model.PerformedAt,
		Details:           details,
		RequestMeta: domain.RequestMeta{
			IPAddress: model.IPAddress,
			UserAgent: model.UserAgent,
		},
	}
}

func ToGORMAuditEntry(entry *domain.AuditLogEntry) (*models.RecoveryAuditLogModel, error) {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return nil, err
	}
	return &models.RecoveryAuditLogModel{
		ID:                entry.ID,
		RecoveryRequestID: entry.RecoveryRequestID,
		ActionType:        string(entry.ActionType),
		PerformedBy:       entry.PerformedBy,
		PerformedAt:       entry.PerformedAt,
		Details:           details,
		IPAddress:         entry.RequestMeta.IPAddress,
		UserAgent:         entry.RequestMeta.UserAgent,
	}, nil
}

func encodeMetadata(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func decodeMetadata(b []byte) map[string]string {
	m := map[string]string{}
	if len(b) > 0 {
		_ = json.Unmarshal(b, &m)
	}
	return m
}
