package domain

import (
	"fmt"
	"time"
)

type RecoveryStatus string

const (
	RecoveryPending  RecoveryStatus = "pending"
	RecoveryApproved RecoveryStatus = "approved"
	RecoveryRejected RecoveryStatus = "rejected"
	RecoveryExecuted RecoveryStatus = "executed"
	RecoveryFailed   RecoveryStatus = "failed"
	RecoveryExpired  RecoveryStatus = "expired"
)

type FailureKind string

const (
	FailureLedger     FailureKind = "ledger"
	FailureEncryption FailureKind = "encryption"
	FailureBusiness   FailureKind = "business"
)

const (
	DefaultWaitingPeriodHours = 24
	MinWaitingPeriodHours     = 1
	MaxWaitingPeriodHours     = 168
	DefaultRequiredApprovals  = 2
	DefaultExpiryWindow       = 48 * time.Hour
)

// transitions lists the legal destinations for every status. Terminal states
// have no entry.
var transitions = map[RecoveryStatus][]RecoveryStatus{
	RecoveryPending:  {RecoveryApproved, RecoveryRejected, RecoveryExpired},
	RecoveryApproved: {RecoveryRejected, RecoveryExecuted, RecoveryFailed, RecoveryExpired},
	RecoveryFailed:   {RecoveryExecuted, RecoveryFailed, RecoveryExpired},
}

func CanTransition(from, to RecoveryStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RecoveryStatus) IsTerminal() bool {
	return s == RecoveryExecuted || s == RecoveryRejected || s == RecoveryExpired
}

// IsOpen reports whether the status counts against the one-open-request-per-wallet rule.
func (s RecoveryStatus) IsOpen() bool {
	return s == RecoveryPending || s == RecoveryApproved
}

func (s RecoveryStatus) Valid() bool {
	switch s {
	case RecoveryPending, RecoveryApproved, RecoveryRejected, RecoveryExecuted, RecoveryFailed, RecoveryExpired:
		return true
	}
	return false
}

type RecoveryRequest struct {
	ID       string
	UserID   string
	WalletID string
	Reason   string
	Status   RecoveryStatus

	WaitingPeriodHours int
	ExecutableAfter    time.Time
	ExpiresAt          time.Time

	RequiredApprovals int
	Approvals         ApprovalSet

	NewPublicKey       string
	EncryptedNewSecret string

	ExecutedBy    string
	ExecutedAt    *time.Time
	ReceiptID     string
	FailureReason string
	FailureKind   FailureKind
	RetryCount    int
	LastRetryAt   *time.Time

	SubmissionID        string
	SubmissionStartedAt *time.Time
	// Forced is set when an elevated force-execute bypassed quorum and time-lock.
	Forced bool

	RequestedBy string
	Metadata    map[string]string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NewRecoveryParams struct {
	ID                 string
	UserID             string
	WalletID           string
	Reason             string
	RequestedBy        string
	WaitingPeriodHours int
	RequiredApprovals  int
	ExpiryWindow       time.Duration
	NewPublicKey       string
	EncryptedNewSecret string
	Metadata           map[string]string
}

// NewRecoveryRequest builds a pending request and fixes its executable window
// relative to now. The window is never recomputed afterwards.
func NewRecoveryRequest(p NewRecoveryParams, now time.Time) (*RecoveryRequest, error) {
	if p.UserID == "" || p.WalletID == "" {
		return nil, fmt.Errorf("%w: user and wallet are required", ErrValidation)
	}
	if p.NewPublicKey == "" || p.EncryptedNewSecret == "" {
		return nil, fmt.Errorf("%w: replacement key material is required", ErrValidation)
	}
	hours := p.WaitingPeriodHours
	if hours == 0 {
		hours = DefaultWaitingPeriodHours
	}
	if hours < MinWaitingPeriodHours || hours > MaxWaitingPeriodHours {
		return nil, fmt.Errorf("%w: waiting period must be between %d and %d hours",
			ErrValidation, MinWaitingPeriodHours, MaxWaitingPeriodHours)
	}
	required := p.RequiredApprovals
	if required == 0 {
		required = DefaultRequiredApprovals
	}
	if required < 1 {
		return nil, fmt.Errorf("%w: required approvals must be positive", ErrValidation)
	}
	window := p.ExpiryWindow
	if window <= 0 {
		window = DefaultExpiryWindow
	}

	executableAfter := now.Add(time.Duration(hours) * time.Hour)
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &RecoveryRequest{
		ID:                 p.ID,
		UserID:             p.UserID,
		WalletID:           p.WalletID,
		Reason:             p.Reason,
		Status:             RecoveryPending,
		WaitingPeriodHours: hours,
		ExecutableAfter:    executableAfter,
		ExpiresAt:          executableAfter.Add(window),
		RequiredApprovals:  required,
		NewPublicKey:       p.NewPublicKey,
		EncryptedNewSecret: p.EncryptedNewSecret,
		RequestedBy:        p.RequestedBy,
		Metadata:           metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (r *RecoveryRequest) CurrentApprovals() int {
	return r.Approvals.Len()
}

func (r *RecoveryRequest) QuorumMet() bool {
	return r.Approvals.Len() >= r.RequiredApprovals
}

func (r *RecoveryRequest) TimeLockPassed(now time.Time) bool {
	return !now.Before(r.ExecutableAfter)
}

// Expired reports whether now is strictly past the expiry instant.
func (r *RecoveryRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r *RecoveryRequest) InExecutableWindow(now time.Time) bool {
	return r.TimeLockPassed(now) && !r.Expired(now)
}

func (r *RecoveryRequest) SubmissionInFlight() bool {
	return r.SubmissionID != ""
}

// Clone returns a deep copy suitable for mutation before a compare-and-set write.
func (r *RecoveryRequest) Clone() *RecoveryRequest {
	c := *r
	c.Approvals = r.Approvals.Clone()
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.ExecutedAt != nil {
		t := *r.ExecutedAt
		c.ExecutedAt = &t
	}
	if r.LastRetryAt != nil {
		t := *r.LastRetryAt
		c.LastRetryAt = &t
	}
	if r.SubmissionStartedAt != nil {
		t := *r.SubmissionStartedAt
		c.SubmissionStartedAt = &t
	}
	return &c
}

func (r *RecoveryRequest) transitionTo(next RecoveryStatus, now time.Time) error {
	forcedFromPending := r.Forced && r.Status == RecoveryPending &&
		(next == RecoveryExecuted || next == RecoveryFailed)
	if !CanTransition(r.Status, next) && !forcedFromPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Approve records an approval. It reports whether the approver was new and
// whether this insert moved the request to approved.
func (r *RecoveryRequest) Approve(approverID string, now time.Time) (added, reachedQuorum bool, err error) {
	if approverID == "" {
		return false, false, fmt.Errorf("%w: approver is required", ErrValidation)
	}
	if r.Status != RecoveryPending {
		if r.Status == RecoveryApproved {
			return false, false, nil
		}
		return false, false, fmt.Errorf("%w: cannot approve %s request", ErrInvalidTransition, r.Status)
	}
	if r.Expired(now) {
		return false, false, ErrExpired
	}
	added, reachedQuorum = r.Approvals.Add(approverID, now, r.RequiredApprovals)
	if !added {
		return false, false, nil
	}
	r.UpdatedAt = now
	if reachedQuorum {
		if err := r.transitionTo(RecoveryApproved, now); err != nil {
			return false, false, err
		}
	}
	return added, reachedQuorum, nil
}

func (r *RecoveryRequest) Reject(now time.Time) error {
	return r.transitionTo(RecoveryRejected, now)
}

func (r *RecoveryRequest) Expire(now time.Time) error {
	if !r.Expired(now) {
		return fmt.Errorf("%w: request expires at %s", ErrInvalidTransition, r.ExpiresAt.Format(time.RFC3339))
	}
	return r.transitionTo(RecoveryExpired, now)
}

// BeginSubmission stamps the in-flight marker written before any ledger call.
func (r *RecoveryRequest) BeginSubmission(submissionID string, now time.Time) error {
	executable := r.Status == RecoveryApproved || r.Status == RecoveryFailed ||
		(r.Forced && r.Status == RecoveryPending)
	if !executable {
		return fmt.Errorf("%w: cannot execute %s request", ErrInvalidTransition, r.Status)
	}
	if r.SubmissionInFlight() {
		return fmt.Errorf("%w: submission %s already in flight", ErrConflict, r.SubmissionID)
	}
	r.SubmissionID = submissionID
	r.SubmissionStartedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *RecoveryRequest) ClearSubmission(now time.Time) {
	r.SubmissionID = ""
	r.SubmissionStartedAt = nil
	r.UpdatedAt = now
}

func (r *RecoveryRequest) MarkExecuted(executedBy, receiptID string, now time.Time) error {
	if err := r.transitionTo(RecoveryExecuted, now); err != nil {
		return err
	}
	r.ExecutedBy = executedBy
	r.ExecutedAt = &now
	r.ReceiptID = receiptID
	r.ClearSubmission(now)
	return nil
}

func (r *RecoveryRequest) MarkFailed(reason string, kind FailureKind, now time.Time) error {
	if err := r.transitionTo(RecoveryFailed, now); err != nil {
		return err
	}
	r.FailureReason = reason
	r.FailureKind = kind
	r.RetryCount++
	r.LastRetryAt = &now
	r.ClearSubmission(now)
	return nil
}

// View is the public projection of a request. It never carries key material.
type RecoveryView struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	WalletID           string            `json:"wallet_id"`
	Reason             string            `json:"reason"`
	Status             RecoveryStatus    `json:"status"`
	WaitingPeriodHours int               `json:"waiting_period_hours"`
	ExecutableAfter    time.Time         `json:"executable_after"`
	ExpiresAt          time.Time         `json:"expires_at"`
	RequiredApprovals  int               `json:"required_approvals"`
	CurrentApprovals   int               `json:"current_approvals"`
	ApprovedBy         []Approval        `json:"approved_by"`
	NewPublicKey       string            `json:"new_public_key"`
	ExecutedBy         string            `json:"executed_by,omitempty"`
	ExecutedAt         *time.Time        `json:"executed_at,omitempty"`
	ReceiptID          string            `json:"receipt_id,omitempty"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	RetryCount         int               `json:"retry_count"`
	LastRetryAt        *time.Time        `json:"last_retry_at,omitempty"`
	Forced             bool              `json:"forced,omitempty"`
	RequestedBy        string            `json:"requested_by"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (r *RecoveryRequest) View() RecoveryView {
	return RecoveryView{
		ID:                 r.ID,
		UserID:             r.UserID,
		WalletID:           r.WalletID,
		Reason:             r.Reason,
		Status:             r.Status,
		WaitingPeriodHours: r.WaitingPeriodHours,
		ExecutableAfter:    r.ExecutableAfter,
		ExpiresAt:          r.ExpiresAt,
		RequiredApprovals:  r.RequiredApprovals,
		CurrentApprovals:   r.CurrentApprovals(),
		ApprovedBy:         r.Approvals.List(),
		NewPublicKey:       r.NewPublicKey,
		ExecutedBy:         r.ExecutedBy,
		ExecutedAt:         r.ExecutedAt,
		ReceiptID:          r.ReceiptID,
		FailureReason:      r.FailureReason,
		RetryCount:         r.RetryCount,
		LastRetryAt:        r.LastRetryAt,
		Forced:             r.Forced,
		RequestedBy:        r.RequestedBy,
		Metadata:           r.Metadata,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type RecoveryFilter struct {
	Status   *RecoveryStatus
	UserID   *string
	WalletID *string
	Page     int
	Limit    int
}
