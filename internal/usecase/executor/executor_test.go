package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLedger struct {
	mu       sync.Mutex
	results  []error
	calls    int
	lastSeen domain.LedgerRotation
}

func (l *scriptedLedger) SubmitSignerRotation(_ context.Context, rotation domain.LedgerRotation) (*domain.LedgerReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.lastSeen = rotation
	l.lastSeen.SigningSecret = append([]byte(nil), rotation.SigningSecret...)
	if len(l.results) > 0 {
		err := l.results[0]
		l.results = l.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.LedgerReceipt{ReceiptID: "rcpt-1"}, nil
}

func (l *scriptedLedger) LookupSubmission(context.Context, string) (*domain.LedgerReceipt, bool, error) {
	return nil, false, nil
}

type stubOpener struct{ err error }

func (o stubOpener) Open(ciphertext string) ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	return []byte(ciphertext), nil
}

func newStore(t *testing.T, signers ...*domain.Signer) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.SaveWallet(ctx, &domain.CustodyWallet{ID: "w1", UserID: "u1", AccountKey: "GACCOUNT"}))
	for _, signer := range signers {
		require.NoError(t, s.AddSigner(ctx, signer))
	}
	return s
}

func userSigner() *domain.Signer {
	return &domain.Signer{ID: "s1", WalletID: "w1", PublicKey: "old", Weight: 2, Role: domain.SignerRoleUser, Status: domain.SignerActive}
}

func request() *domain.RecoveryRequest {
	return &domain.RecoveryRequest{
		ID:                 "r1",
		WalletID:           "w1",
		NewPublicKey:       "new",
		EncryptedNewSecret: "seed-hex",
		SubmissionID:       "sub-1",
	}
}

func newExecutor(ledger domain.LedgerClient, opener domain.Opener, signers domain.SignerDirectory) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ledger, opener, signers, nil, logger, Config{
		Timeout:         time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func TestExecuteSuccess(t *testing.T) {
	ledger := &scriptedLedger{}
	e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))

	result, err := e.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "rcpt-1", result.ReceiptID)
	assert.Equal(t, "s1", result.OldSigner.ID)

	assert.Equal(t, "GACCOUNT", ledger.lastSeen.AccountKey)
	assert.Equal(t, "old", ledger.lastSeen.OldKey)
	assert.Equal(t, "new", ledger.lastSeen.NewKey)
	assert.Equal(t, 2, ledger.lastSeen.Weight)
	assert.Equal(t, "sub-1", ledger.lastSeen.SubmissionID)
	assert.Equal(t, []byte("seed-hex"), ledger.lastSeen.SigningSecret)
}

func TestExecuteRetriesTemporaryErrors(t *testing.T) {
	ledger := &scriptedLedger{results: []error{
		&domain.LedgerError{Code: "503", Message: "unavailable", Temporary: true},
		&domain.LedgerError{Code: "429", Message: "slow down", Temporary: true},
	}}
	e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))

	result, err := e.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, ledger.calls)
}

func TestExecutePermanentLedgerError(t *testing.T) {
	ledger := &scriptedLedger{results: []error{&domain.LedgerError{Code: "tx_bad_auth", Message: "bad signature"}}}
	e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))

	result, err := e.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailureLedger, result.Kind)
	assert.Contains(t, result.Reason, "bad signature")
	assert.Equal(t, 1, ledger.calls)
}

func TestExecuteFailureKinds(t *testing.T) {
	t.Run("undecryptable secret", func(t *testing.T) {
		ledger := &scriptedLedger{}
		e := newExecutor(ledger, stubOpener{err: errors.New("no identity matched")}, newStore(t, userSigner()))
		result, err := e.Execute(context.Background(), request())
		require.NoError(t, err)
		assert.Equal(t, domain.FailureEncryption, result.Kind)
		assert.Zero(t, ledger.calls)
	})

	t.Run("no active user signer", func(t *testing.T) {
		ledger := &scriptedLedger{}
		e := newExecutor(ledger, stubOpener{}, newStore(t))
		result, err := e.Execute(context.Background(), request())
		require.NoError(t, err)
		assert.Equal(t, domain.FailureBusiness, result.Kind)
		assert.Zero(t, ledger.calls)
	})

	t.Run("replacement already active", func(t *testing.T) {
		ledger := &scriptedLedger{}
		e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))
		req := request()
		req.NewPublicKey = "old"
		result, err := e.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureBusiness, result.Kind)
		assert.Zero(t, ledger.calls)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		e := newExecutor(&scriptedLedger{}, stubOpener{}, newStore(t))
		req := request()
		req.WalletID = "missing"
		result, err := e.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureBusiness, result.Kind)
	})
}

func TestExecuteTimesOutWithoutConfirmation(t *testing.T) {
	ledger := &blockingLedger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(ledger, stubOpener{}, newStore(t, userSigner()), nil, logger, Config{Timeout: 20 * time.Millisecond})

	result, err := e.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.Unconfirmed)
	assert.Equal(t, domain.FailureLedger, result.Kind)
	assert.Contains(t, result.Reason, "timed out")
}

func TestExecuteUnconfirmedOutcomes(t *testing.T) {
	t.Run("caller cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e := newExecutor(&blockingLedger{}, stubOpener{}, newStore(t, userSigner()))
		result, err := e.Execute(ctx, request())
		require.NoError(t, err)
		assert.True(t, result.Unconfirmed)
		assert.Contains(t, result.Reason, "interrupted")
	})

	t.Run("connection dropped after send", func(t *testing.T) {
		ledger := &scriptedLedger{results: []error{io.ErrUnexpectedEOF}}
		e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))
		result, err := e.Execute(context.Background(), request())
		require.NoError(t, err)
		assert.True(t, result.Unconfirmed)
		assert.Equal(t, 1, ledger.calls)
	})

	t.Run("success without usable receipt", func(t *testing.T) {
		ledger := &scriptedLedger{results: []error{&domain.LedgerError{Code: domain.LedgerCodeMalformedResponse, Message: "eof"}}}
		e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))
		result, err := e.Execute(context.Background(), request())
		require.NoError(t, err)
		assert.True(t, result.Unconfirmed)
	})

	t.Run("explicit rejection is definite", func(t *testing.T) {
		ledger := &scriptedLedger{results: []error{&domain.LedgerError{Code: "tx_bad_seq", Message: "sequence"}}}
		e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))
		result, err := e.Execute(context.Background(), request())
		require.NoError(t, err)
		assert.False(t, result.Unconfirmed)
		assert.Equal(t, domain.FailureLedger, result.Kind)
	})
}

func TestExecuteCorruptSigningSecretIsEncryptionFailure(t *testing.T) {
	ledger := &scriptedLedger{results: []error{
		fmt.Errorf("%w: signing secret is not a hex encoded ed25519 seed", domain.ErrEncryption),
	}}
	e := newExecutor(ledger, stubOpener{}, newStore(t, userSigner()))

	result, err := e.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, result.Unconfirmed)
	assert.Equal(t, domain.FailureEncryption, result.Kind)
	assert.Equal(t, 1, ledger.calls)
}

type blockingLedger struct{}

func (blockingLedger) SubmitSignerRotation(ctx context.Context, _ domain.LedgerRotation) (*domain.LedgerReceipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingLedger) LookupSubmission(context.Context, string) (*domain.LedgerReceipt, bool, error) {
	return nil, false, nil
}
