package usecase

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
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	"github.com/LavaJover/shvark-recovery-service/internal/usecase/executor"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	owner   = domain.Actor{ID: "user-1", Role: domain.RoleUser}
	admin1  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	admin2  = domain.Actor{ID: "admin-2", Role: domain.RoleAdmin}
	officer = domain.Actor{ID: "officer-1", Role: domain.RoleSecurityOfficer}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLedger accepts rotations unless an error is queued. Applied submissions
// are remembered for LookupSubmission.
type fakeLedger struct {
	mu          sync.Mutex
	errs        []error
	submissions []string
	applied     map[string]*domain.LedgerReceipt
	lookupErr   error
	// lost counts submissions that apply but answer with a timeout.
	lost int

	// gate, when set, holds every submission until it is closed.
	gate chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{applied: make(map[string]*domain.LedgerReceipt)}
}

func (l *fakeLedger) failNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.errs = append(l.errs, &domain.LedgerError{Code: "tx_failed", Message: "sequence mismatch"})
	}
}

func (l *fakeLedger) SubmitSignerRotation(ctx context.Context, rotation domain.LedgerRotation) (*domain.LedgerReceipt, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions = append(l.submissions, rotation.SubmissionID)
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	receipt := &domain.LedgerReceipt{ReceiptID: fmt.Sprintf("rcpt-%d", len(l.submissions)), SubmittedAt: t0}
	l.applied[rotation.SubmissionID] = receipt
	if l.lost > 0 {
		l.lost--
		return nil, context.DeadlineExceeded
	}
	return receipt, nil
}

func (l *fakeLedger) loseNextResponse() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost++
}

func (l *fakeLedger) submissionIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.submissions...)
}

func (l *fakeLedger) LookupSubmission(_ context.Context, submissionID string) (*domain.LedgerReceipt, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return nil, false, l.lookupErr
	}
	receipt, ok := l.applied[submissionID]
	return receipt, ok, nil
}

func (l *fakeLedger) submitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.submissions)
}

// plainSealer stores the secret as-is so tests can inspect it.
type plainSealer struct{}

func (plainSealer) Seal(plaintext []byte) (string, error) { return string(plaintext), nil }

type plainOpener struct {
	mu   sync.Mutex
	fail bool
}

func (o *plainOpener) setFail(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail = fail
}

func (o *plainOpener) Open(ciphertext string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, errors.New("no identity matched")
	}
	return []byte(ciphertext), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.RecoveryEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.RecoveryEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(eventType domain.RecoveryEventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

type harness struct {
	uc       *DefaultRecoveryUsecase
	store    *memory.Store
	clock    *fakeClock
	ledger   *fakeLedger
	opener   *plainOpener
	notifier *recordingNotifier
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewStore(),
		clock:    &fakeClock{now: t0},
		ledger:   newFakeLedger(),
		opener:   &plainOpener{},
		notifier: &recordingNotifier{},
	}
	ctx := context.Background()
	require.NoError(t, h.store.SaveWallet(ctx, &domain.CustodyWallet{
		ID: "wallet-1", UserID: "user-1", AccountKey: "GACCOUNT",
		Thresholds: domain.Thresholds{Low: 1, Medium: 2, High: 2},
	}))
	require.NoError(t, h.store.AddSigner(ctx, &domain.Signer{
		ID: "signer-user", WalletID: "wallet-1", PublicKey: "old-user-key", Weight: 1,
		Role: domain.SignerRoleUser, Status: domain.SignerActive, CreatedAt: t0,
	}))
	require.NoError(t, h.store.AddSigner(ctx, &domain.Signer{
		ID: "signer-platform", WalletID: "wallet-1", PublicKey: "platform-key", Weight: 1,
		Role: domain.SignerRolePlatform, Status: domain.SignerActive, EncryptedSecret: "sealed", CreatedAt: t0,
	}))

	cfg := Config{
		WaitingPeriodHours: 24,
		RequiredApprovals:  2,
		ExpiryWindow:       48 * time.Hour,
		MinReasonLength:    10,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.New(h.ledger, h.opener, h.store, nil, logger, executor.Config{
		Timeout:         time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	h.uc = NewDefaultRecoveryUsecase(h.store, h.store, h.store, exec, plainSealer{}, h.notifier, h.clock, nil, logger, cfg)
	return h
}

func (h *harness) create(t *testing.T) *domain.RecoveryView {
	t.Helper()
	view, err := h.uc.RequestRecovery(context.Background(), owner, &recoverydto.RequestRecoveryInput{
		UserID:   "user-1",
		WalletID: "wallet-1",
		Reason:   "lost my hardware wallet",
	})
	require.NoError(t, err)
	return view
}

func (h *harness) approveAll(t *testing.T, id string) *domain.RecoveryView {
	t.Helper()
	_, err := h.uc.Approve(context.Background(), admin1, id)
	require.NoError(t, err)
	view, err := h.uc.Approve(context.Background(), admin2, id)
	require.NoError(t, err)
	require.Equal(t, domain.RecoveryApproved, view.Status)
	return view
}

func (h *harness) audit(t *testing.T, id string) []*domain.AuditLogEntry {
	t.Helper()
	entries, err := h.store.ListByRequest(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func countActions(entries []*domain.AuditLogEntry, action domain.AuditAction) int {
	n := 0
	for _, e := range entries {
		if e.ActionType == action {
			n++
		}
	}
	return n
}
