package domain

import (
	"fmt"
	"time"
)

type SignerRole string

const (
	SignerRoleUser     SignerRole = "user"
	SignerRolePlatform SignerRole = "platform"
	SignerRoleCosigner SignerRole = "cosigner"
)

// PlatformControlled reports whether the platform holds key material for the role.
func (r SignerRole) PlatformControlled() bool {
	return r == SignerRolePlatform || r == SignerRoleCosigner
}

type SignerStatus string

const (
	SignerActive    SignerStatus = "active"
	SignerInactive  SignerStatus = "inactive"
	SignerRecovered SignerStatus = "recovered"
)

type Thresholds struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

func (t Thresholds) Validate() error {
	if t.Low < 0 || t.Low > t.Medium || t.Medium > t.High {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= low <= medium <= high (got %d/%d/%d)",
			ErrValidation, t.Low, t.Medium, t.High)
	}
	return nil
}

type CustodyWallet struct {
	ID         string
	UserID     string
	AccountKey string
	Thresholds Thresholds
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (w *CustodyWallet) Validate() error {
	if w.ID == "" || w.UserID == "" || w.AccountKey == "" {
		return fmt.Errorf("%w: wallet id, user and account key are required", ErrValidation)
	}
	return w.Thresholds.Validate()
}

type Signer struct {
	ID              string
	WalletID        string
	PublicKey       string
	Weight          int
	Role            SignerRole
	Status          SignerStatus
	EncryptedSecret string
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate enforces the write-time rules: platform roles carry sealed key
// material, user-role signers never do.
func (s *Signer) Validate() error {
	if s.WalletID == "" || s.PublicKey == "" {
		return fmt.Errorf("%w: signer wallet and public key are required", ErrValidation)
	}
	if s.Weight < 0 || s.Weight > 255 {
		return fmt.Errorf("%w: signer weight %d out of range", ErrValidation, s.Weight)
	}
	switch s.Status {
	case SignerActive, SignerInactive, SignerRecovered:
	default:
		return fmt.Errorf("%w: unknown signer status %q", ErrValidation, s.Status)
	}
	switch {
	case s.Role == SignerRoleUser:
		if s.EncryptedSecret != "" {
			return fmt.Errorf("%w: user-role signer must not hold platform key material", ErrValidation)
		}
	case s.Role.PlatformControlled():
		if s.EncryptedSecret == "" {
			return fmt.Errorf("%w: %s signer requires sealed key material", ErrValidation, s.Role)
		}
	default:
		return fmt.Errorf("%w: unknown signer role %q", ErrValidation, s.Role)
	}
	return nil
}

// ActiveUserSigner returns the single active user-role signer of a wallet.
func ActiveUserSigner(signers []*Signer) (*Signer, error) {
	var found *Signer
	for _, s := range signers {
		if s.Role != SignerRoleUser || s.Status != SignerActive {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: wallet has more than one active user signer", ErrConflict)
		}
		found = s
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no active user signer", ErrNotFound)
	}
	return found, nil
}

// SignerRotation describes the directory change applied after a successful
// ledger submission.
type SignerRotation struct {
	WalletID  string
	OldSigner *Signer
	NewSigner *Signer
}

// NewSignerRotation marks old as recovered, keeping its key in metadata, and
// builds the active replacement at the same weight.
func NewSignerRotation(old *Signer, newSignerID, newPublicKey, requestID, receiptID string, now time.Time) *SignerRotation {
	recovered := *old
	recovered.Status = SignerRecovered
	recovered.Metadata = map[string]string{}
	for k, v := range old.Metadata {
		recovered.Metadata[k] = v
	}
	recovered.Metadata["recovered_key"] = old.PublicKey
	recovered.Metadata["recovery_request_id"] = requestID
	recovered.Metadata["receipt_id"] = receiptID
	recovered.Metadata["recovered_at"] = now.UTC().Format(time.RFC3339)
	recovered.UpdatedAt = now

	return &SignerRotation{
		WalletID:  old.WalletID,
		OldSigner: &recovered,
		NewSigner: &Signer{
			ID:        newSignerID,
			WalletID:  old.WalletID,
			PublicKey: newPublicKey,
			Weight:    old.Weight,
			Role:      SignerRoleUser,
			Status:    SignerActive,
			Metadata: map[string]string{
				"replaces":            old.PublicKey,
				"recovery_request_id": requestID,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
