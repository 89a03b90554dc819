package ledger

import "time"

type RotationRequest struct {
	AccountKey   string `json:"account_key"`
	OldKey       string `json:"old_key"`
	NewKey       string `json:"new_key"`
	Weight       int    `json:"weight"`
	SubmissionID string `json:"submission_id"`
}

type ReceiptResponse struct {
	ReceiptID    string    `json:"receipt_id"`
	SubmissionID string    `json:"submission_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
