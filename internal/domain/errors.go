package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTimeLocked   = errors.New("time-lock has not elapsed")
	ErrQuorumNotMet = errors.New("approval quorum not met")
	ErrExpired      = errors.New("recovery request expired")

	ErrLedgerSubmission = errors.New("ledger submission failed")
	ErrEncryption       = errors.New("key material could not be decrypted")

	ErrForceExecuteDisabled = errors.New("force execute is disabled")
)

var (
	ErrDuplicateRequest  = fmt.Errorf("%w: an open recovery request already exists for this wallet", ErrConflict)
	ErrStaleState        = fmt.Errorf("%w: request was modified concurrently", ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
)
