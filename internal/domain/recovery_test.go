package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPending(t *testing.T, required int) *RecoveryRequest {
	t.Helper()
	req, err := NewRecoveryRequest(NewRecoveryParams{
		ID:                 "req-1",
		UserID:             "user-1",
		WalletID:           "wallet-1",
		WaitingPeriodHours: 24,
		RequiredApprovals:  required,
		ExpiryWindow:       48 * time.Hour,
		NewPublicKey:       "pub",
		EncryptedNewSecret: "sealed",
	}, t0)
	require.NoError(t, err)
	return req
}

func TestNewRecoveryRequestWindow(t *testing.T) {
	req := newPending(t, 2)

	assert.Equal(t, RecoveryPending, req.Status)
	assert.Equal(t, t0.Add(24*time.Hour), req.ExecutableAfter)
	assert.Equal(t, t0.Add(72*time.Hour), req.ExpiresAt)
	assert.Equal(t, 0, req.CurrentApprovals())
	assert.NotNil(t, req.Metadata)
}

func TestNewRecoveryRequestValidation(t *testing.T) {
	base := NewRecoveryParams{UserID: "u", WalletID: "w", NewPublicKey: "p", EncryptedNewSecret: "s"}

	tests := []struct {
		name   string
		mutate func(p *NewRecoveryParams)
	}{
		{"missing wallet", func(p *NewRecoveryParams) { p.WalletID = "" }},
		{"missing key", func(p *NewRecoveryParams) { p.NewPublicKey = "" }},
		{"waiting period too long", func(p *NewRecoveryParams) { p.WaitingPeriodHours = 169 }},
		{"negative waiting period", func(p *NewRecoveryParams) { p.WaitingPeriodHours = -1 }},
		{"negative approvals", func(p *NewRecoveryParams) { p.RequiredApprovals = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := NewRecoveryRequest(p, t0)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	req, err := NewRecoveryRequest(base, t0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWaitingPeriodHours, req.WaitingPeriodHours)
	assert.Equal(t, DefaultRequiredApprovals, req.RequiredApprovals)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(RecoveryPending, RecoveryApproved))
	assert.True(t, CanTransition(RecoveryApproved, RecoveryExecuted))
	assert.True(t, CanTransition(RecoveryFailed, RecoveryFailed))
	assert.True(t, CanTransition(RecoveryFailed, RecoveryExecuted))
	assert.False(t, CanTransition(RecoveryPending, RecoveryExecuted))
	assert.False(t, CanTransition(RecoveryFailed, RecoveryRejected))

	for _, terminal := range []RecoveryStatus{RecoveryExecuted, RecoveryRejected, RecoveryExpired} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range []RecoveryStatus{RecoveryPending, RecoveryApproved, RecoveryFailed, RecoveryExecuted} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestApproveReachesQuorumOnce(t *testing.T) {
	req := newPending(t, 2)

	added, reached, err := req.Approve("admin-1", t0)
	require.NoError(t, err)
	assert.True(t, added)
	assert.False(t, reached)
	assert.Equal(t, RecoveryPending, req.Status)

	added, reached, err = req.Approve("admin-1", t0)
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, reached)

	added, reached, err = req.Approve("admin-2", t0)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, reached)
	assert.Equal(t, RecoveryApproved, req.Status)

	added, reached, err = req.Approve("admin-3", t0)
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, reached)
	assert.Equal(t, 2, req.CurrentApprovals())
}

func TestApproveRefusedOnClosedOrExpired(t *testing.T) {
	req := newPending(t, 2)
	_, _, err := req.Approve("admin-1", req.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrExpired)

	require.NoError(t, req.Reject(t0))
	_, _, err = req.Approve("admin-1", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTimeLockAndExpiryBoundaries(t *testing.T) {
	req := newPending(t, 1)

	assert.False(t, req.TimeLockPassed(req.ExecutableAfter.Add(-time.Nanosecond)))
	assert.True(t, req.TimeLockPassed(req.ExecutableAfter))
	assert.False(t, req.Expired(req.ExpiresAt))
	assert.True(t, req.Expired(req.ExpiresAt.Add(time.Nanosecond)))
	assert.True(t, req.InExecutableWindow(req.ExpiresAt))

	assert.ErrorIs(t, req.Expire(req.ExpiresAt), ErrInvalidTransition)
	require.NoError(t, req.Expire(req.ExpiresAt.Add(time.Second)))
	assert.Equal(t, RecoveryExpired, req.Status)
}

func TestSubmissionLifecycle(t *testing.T) {
	req := newPending(t, 1)
	assert.ErrorIs(t, req.BeginSubmission("sub-1", t0), ErrInvalidTransition)

	_, _, err := req.Approve("admin-1", t0)
	require.NoError(t, err)
	require.NoError(t, req.BeginSubmission("sub-1", t0))
	assert.True(t, req.SubmissionInFlight())
	assert.ErrorIs(t, req.BeginSubmission("sub-2", t0), ErrConflict)

	require.NoError(t, req.MarkFailed("ledger down", FailureLedger, t0))
	assert.Equal(t, RecoveryFailed, req.Status)
	assert.False(t, req.SubmissionInFlight())
	assert.Equal(t, 1, req.RetryCount)

	require.NoError(t, req.BeginSubmission("sub-3", t0))
	require.NoError(t, req.MarkExecuted("system", "rcpt-1", t0))
	assert.Equal(t, RecoveryExecuted, req.Status)
	assert.Equal(t, "rcpt-1", req.ReceiptID)
	assert.False(t, req.SubmissionInFlight())
}

func TestForcedPendingMayExecute(t *testing.T) {
	req := newPending(t, 2)
	req.Forced = true

	require.NoError(t, req.BeginSubmission("sub-1", t0))
	require.NoError(t, req.MarkExecuted("officer", "rcpt", t0))
	assert.Equal(t, RecoveryExecuted, req.Status)
}

func TestCloneIsDeep(t *testing.T) {
	req := newPending(t, 2)
	req.Metadata["k"] = "v"
	_, _, err := req.Approve("admin-1", t0)
	require.NoError(t, err)

	c := req.Clone()
	c.Metadata["k"] = "changed"
	_, _, err = c.Approve("admin-2", t0)
	require.NoError(t, err)

	assert.Equal(t, "v", req.Metadata["k"])
	assert.Equal(t, 1, req.CurrentApprovals())
	assert.Equal(t, RecoveryPending, req.Status)
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, AuditApproved, ActionFor(RecoveryPending, RecoveryApproved))
	assert.Equal(t, AuditFailed, ActionFor(RecoveryApproved, RecoveryFailed))
	assert.Equal(t, AuditRetryAttempted, ActionFor(RecoveryFailed, RecoveryFailed))
	assert.Equal(t, AuditExecuted, ActionFor(RecoveryFailed, RecoveryExecuted))
}

func TestViewOmitsKeyMaterial(t *testing.T) {
	req := newPending(t, 2)
	view := req.View()
	assert.Equal(t, "pub", view.NewPublicKey)
	assert.Equal(t, req.ID, view.ID)
	assert.Empty(t, view.ApprovedBy)
}
