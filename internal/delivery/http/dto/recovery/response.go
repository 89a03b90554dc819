package recovery

import "github.com/LavaJover/shvark-recovery-service/internal/domain"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ExecutionFailedResponse carries the recorded failure alongside the error.
type ExecutionFailedResponse struct {
	ErrorResponse
	Request *domain.RecoveryView `json:"request"`
}
