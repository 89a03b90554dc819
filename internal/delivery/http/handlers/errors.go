package handlers

import (
	"errors"
	"net/http"

	recoveryhttp "github.com/LavaJover/shvark-recovery-service/internal/delivery/http/dto/recovery"
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/labstack/echo/v4"
)

// statusFor maps workflow errors to HTTP status codes and stable error codes.
// More specific sentinels are checked before the ones they wrap.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrForceExecuteDisabled):
		return http.StatusForbidden, "force_execute_disabled"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrStaleState):
		return http.StatusConflict, "stale_state"
	case errors.Is(err, domain.ErrTimeLocked):
		return http.StatusTooEarly, "time_locked"
	case errors.Is(err, domain.ErrQuorumNotMet):
		return http.StatusConflict, "quorum_not_met"
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrLedgerSubmission):
		return http.StatusBadGateway, "ledger_submission_failed"
	case errors.Is(err, domain.ErrEncryption):
		return http.StatusInternalServerError, "encryption_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *RecoveryHandler) respondError(c echo.Context, err error) error {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		message = http.StatusText(status)
	}
	return c.JSON(status, recoveryhttp.ErrorResponse{Error: message, Code: code})
}
