package usecase

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	"github.com/google/uuid"
)

// waitingPeriod resolves the time-lock for a new request. The configured
// period is the floor for everyone except administrators.
func (uc *DefaultRecoveryUsecase) waitingPeriod(actor domain.Actor, requested int) int {
	if requested <= 0 {
		return uc.cfg.WaitingPeriodHours
	}
	if requested < uc.cfg.WaitingPeriodHours && !actor.IsAdmin() {
		return uc.cfg.WaitingPeriodHours
	}
	return requested
}

// RequestRecovery opens a pending recovery for a custody wallet. The executable
// window is fixed here, from the clock reading taken for the request.
func (uc *DefaultRecoveryUsecase) RequestRecovery(ctx context.Context, actor domain.Actor, input *recoverydto.RequestRecoveryInput) (*domain.RecoveryView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleUser && actor.ID != input.UserID {
		return nil, fmt.Errorf("%w: users may only recover their own wallets", domain.ErrUnauthorized)
	}
	if len(strings.TrimSpace(input.Reason)) < uc.cfg.MinReasonLength {
		return nil, fmt.Errorf("%w: reason must be at least %d characters", domain.ErrValidation, uc.cfg.MinReasonLength)
	}

	wallet, err := uc.signers.GetWallet(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != input.UserID {
		return nil, fmt.Errorf("%w: wallet %s does not belong to user %s", domain.ErrValidation, input.WalletID, input.UserID)
	}

	now := uc.clock.Now()
	open, err := uc.repo.FindOpen(ctx, input.UserID, input.WalletID)
	switch {
	case err == nil:
		if !expirable(open, now) {
			return nil, domain.ErrDuplicateRequest
		}
		// A stale open request that nobody swept yet does not block a new one.
		if _, err := uc.expire(ctx, open, now); err != nil {
			return nil, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	publicKey, secret, err := replacementKey(input)
	if err != nil {
		return nil, err
	}
	sealed, err := uc.sealer.Seal(secret)
	zero(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: sealing replacement key: %v", domain.ErrEncryption, err)
	}

	waiting := uc.waitingPeriod(actor, input.WaitingPeriodHours)
	req, err := domain.NewRecoveryRequest(domain.NewRecoveryParams{
		ID:                 uuid.NewString(),
		UserID:             input.UserID,
		WalletID:           input.WalletID,
		Reason:             strings.TrimSpace(input.Reason),
		RequestedBy:        actor.ID,
		WaitingPeriodHours: waiting,
		RequiredApprovals:  uc.cfg.RequiredApprovals,
		ExpiryWindow:       uc.cfg.ExpiryWindow,
		NewPublicKey:       publicKey,
		EncryptedNewSecret: sealed,
		Metadata:           input.Metadata,
	}, now)
	if err != nil {
		return nil, err
	}

	entry := uc.newAudit(req, domain.AuditCreated, actor, map[string]any{
		"wallet_id":            req.WalletID,
		"waiting_period_hours": req.WaitingPeriodHours,
		"executable_after":     req.ExecutableAfter,
		"expires_at":           req.ExpiresAt,
		"new_public_key":       req.NewPublicKey,
	})
	if err := uc.repo.Create(ctx, req, entry); err != nil {
		return nil, err
	}

	uc.metrics.RecordCreated()
	uc.logger.Info("recovery requested",
		"request_id", req.ID,
		"user_id", req.UserID,
		"wallet_id", req.WalletID,
		"executable_after", req.ExecutableAfter,
		"expires_at", req.ExpiresAt,
	)
	uc.notify(ctx, req, domain.EventApprovalNeeded, "")
	return viewOf(req), nil
}

// replacementKey returns the new signer key pair, generating an ed25519 pair
// when the caller did not bring one. Keys are hex encoded.
func replacementKey(input *recoverydto.RequestRecoveryInput) (string, []byte, error) {
	if input.NewPublicKey == "" && len(input.NewSecretKey) == 0 {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", nil, fmt.Errorf("generate replacement key: %w", err)
		}
		seed := []byte(hex.EncodeToString(priv.Seed()))
		zero(priv)
		return hex.EncodeToString(pub), seed, nil
	}
	if input.NewPublicKey == "" || len(input.NewSecretKey) == 0 {
		return "", nil, fmt.Errorf("%w: new public key and secret must be supplied together", domain.ErrValidation)
	}
	pub, err := hex.DecodeString(input.NewPublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", nil, fmt.Errorf("%w: new public key must be a hex encoded ed25519 key", domain.ErrValidation)
	}
	seed, err := hex.DecodeString(string(input.NewSecretKey))
	if err != nil || len(seed) != ed25519.SeedSize {
		return "", nil, fmt.Errorf("%w: new secret must be a hex encoded ed25519 seed", domain.ErrValidation)
	}
	derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	zero(seed)
	if !derived.Equal(ed25519.PublicKey(pub)) {
		return "", nil, fmt.Errorf("%w: new secret does not match new public key", domain.ErrValidation)
	}
	secret := make([]byte, len(input.NewSecretKey))
	copy(secret, input.NewSecretKey)
	return input.NewPublicKey, secret, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
