package domain

import (
	"context"
	"fmt"
	"time"
)

// Commit is one atomic write against the recovery store: the updated request
// (compare-and-set on its Version and ExpectedStatus), an optional new
// approval row, the audit entries and an optional signer rotation.
type Commit struct {
	Request        *RecoveryRequest
	ExpectedStatus RecoveryStatus
	NewApproval    *Approval
	Audit          []*AuditLogEntry
	Rotation       *SignerRotation
}

type RecoveryRepository interface {
	// Create inserts a pending request with its created audit entry.
	// It returns ErrDuplicateRequest when the wallet already has an open request.
	Create(ctx context.Context, req *RecoveryRequest, audit *AuditLogEntry) error
	GetByID(ctx context.Context, id string) (*RecoveryRequest, error)
	FindOpen(ctx context.Context, userID, walletID string) (*RecoveryRequest, error)
	List(ctx context.Context, filter RecoveryFilter) ([]*RecoveryRequest, int64, error)
	ListByStatus(ctx context.Context, statuses ...RecoveryStatus) ([]*RecoveryRequest, error)
	// Commit applies c atomically and bumps the request version. A version or
	// status mismatch yields ErrStaleState and nothing is written.
	Commit(ctx context.Context, c *Commit) error
}

type AuditReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]*AuditLogEntry, error)
}

type AuditRetention interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SignerDirectory interface {
	GetWallet(ctx context.Context, walletID string) (*CustodyWallet, error)
	SaveWallet(ctx context.Context, wallet *CustodyWallet) error
	ListSigners(ctx context.Context, walletID string) ([]*Signer, error)
	AddSigner(ctx context.Context, signer *Signer) error
}

type LedgerRotation struct {
	AccountKey    string
	OldKey        string
	NewKey        string
	Weight        int
	SubmissionID  string
	SigningSecret []byte
}

type LedgerReceipt struct {
	ReceiptID   string
	SubmittedAt time.Time
}

type LedgerClient interface {
	SubmitSignerRotation(ctx context.Context, rotation LedgerRotation) (*LedgerReceipt, error)
	// LookupSubmission reports whether a submission with the given idempotency
	// key has been applied by the ledger.
	LookupSubmission(ctx context.Context, submissionID string) (*LedgerReceipt, bool, error)
}

// LedgerError is returned by ledger clients. Temporary errors are worth
// retrying within the same attempt; the rest are business rejections.
type LedgerError struct {
	Code      string
	Message   string
	Temporary bool
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %s", e.Code, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return ErrLedgerSubmission
}

const (
	LedgerCodeMalformedResponse = "malformed_response"
	LedgerCodeEmptyReceipt      = "empty_receipt"
)

// Unconfirmed reports errors raised after the ledger answered with success,
// where the rotation most likely applied but the receipt is unusable.
func (e *LedgerError) Unconfirmed() bool {
	return e.Code == LedgerCodeMalformedResponse || e.Code == LedgerCodeEmptyReceipt
}

type Sealer interface {
	Seal(plaintext []byte) (string, error)
}

type Opener interface {
	Open(ciphertext string) ([]byte, error)
}

type RecoveryEventType string

const (
	EventApprovalNeeded RecoveryEventType = "approval_needed"
	EventApproved       RecoveryEventType = "approved"
	EventExecuted       RecoveryEventType = "executed"
	EventFailed         RecoveryEventType = "failed"
	EventExpired        RecoveryEventType = "expired"
	EventRejected       RecoveryEventType = "rejected"
)

type RecoveryEvent struct {
	Type       RecoveryEventType `json:"type"`
	RequestID  string            `json:"request_id"`
	UserID     string            `json:"user_id"`
	WalletID   string            `json:"wallet_id"`
	Status     RecoveryStatus    `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	ReceiptID  string            `json:"receipt_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier dispatches events without blocking the caller; delivery failures
// are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, event RecoveryEvent)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
