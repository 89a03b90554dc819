package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeRunner struct {
	mu         sync.Mutex
	executed   []string
	expired    []string
	reconciled []string
	executeErr error
}

func (r *fakeRunner) Execute(_ context.Context, _ domain.Actor, id string) (*domain.RecoveryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, id)
	return nil, r.executeErr
}

func (r *fakeRunner) Expire(_ context.Context, id string) (*domain.RecoveryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, id)
	return nil, nil
}

func (r *fakeRunner) ReconcileSubmission(_ context.Context, id string) (*domain.RecoveryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled = append(r.reconciled, id)
	return nil, nil
}

func req(id string, status domain.RecoveryStatus, approvals int) *domain.RecoveryRequest {
	r := &domain.RecoveryRequest{
		ID:                id,
		WalletID:          "wallet-" + id,
		Status:            status,
		RequiredApprovals: 2,
		ExecutableAfter:   t0,
		ExpiresAt:         t0.Add(48 * time.Hour),
	}
	var set []domain.Approval
	for i := 0; i < approvals; i++ {
		set = append(set, domain.Approval{ApproverID: string(rune('a' + i)), ApprovedAt: t0})
	}
	r.Approvals = domain.NewApprovalSet(set...)
	return r
}

func TestSelectExecutable(t *testing.T) {
	early := req("early", domain.RecoveryApproved, 2)
	late := req("late", domain.RecoveryApproved, 2)
	late.ExecutableAfter = t0.Add(2 * time.Hour)
	locked := req("locked", domain.RecoveryApproved, 2)
	locked.ExecutableAfter = t0.Add(10 * time.Hour)
	inFlight := req("inflight", domain.RecoveryApproved, 2)
	inFlight.SubmissionID = "sub"
	pending := req("pending", domain.RecoveryPending, 1)
	expired := req("expired", domain.RecoveryApproved, 2)
	expired.ExpiresAt = t0.Add(time.Hour)

	now := t0.Add(3 * time.Hour)
	got := SelectExecutable([]*domain.RecoveryRequest{late, locked, inFlight, pending, expired, early}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "late", got[1].ID)
}

func TestSelectRetryable(t *testing.T) {
	now := t0.Add(time.Hour)
	recent := now.Add(-5 * time.Minute)
	old := now.Add(-30 * time.Minute)

	due := req("due", domain.RecoveryFailed, 2)
	due.FailureKind = domain.FailureLedger
	due.RetryCount = 1
	due.LastRetryAt = &old

	tooSoon := req("soon", domain.RecoveryFailed, 2)
	tooSoon.FailureKind = domain.FailureLedger
	tooSoon.LastRetryAt = &recent

	// first failure plus three automatic retries
	lastRetry := req("last-retry", domain.RecoveryFailed, 2)
	lastRetry.FailureKind = domain.FailureLedger
	lastRetry.RetryCount = 3
	lastRetry.LastRetryAt = &old

	exhausted := req("exhausted", domain.RecoveryFailed, 2)
	exhausted.FailureKind = domain.FailureLedger
	exhausted.RetryCount = 4
	exhausted.LastRetryAt = &old

	encryption := req("encryption", domain.RecoveryFailed, 2)
	encryption.FailureKind = domain.FailureEncryption
	encryption.LastRetryAt = &old

	got := SelectRetryable([]*domain.RecoveryRequest{due, tooSoon, lastRetry, exhausted, encryption}, now, 15*time.Minute, 3)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"due", "last-retry"}, ids)
}

func TestSelectExpiredAndStale(t *testing.T) {
	now := t0.Add(49 * time.Hour)
	pending := req("pending", domain.RecoveryPending, 0)
	failed := req("failed", domain.RecoveryFailed, 2)
	executed := req("executed", domain.RecoveryExecuted, 2)
	started := t0.Add(48*time.Hour + 30*time.Minute)
	inFlight := req("inflight", domain.RecoveryApproved, 2)
	inFlight.SubmissionID = "sub"
	inFlight.SubmissionStartedAt = &started

	got := SelectExpired([]*domain.RecoveryRequest{pending, failed, executed, inFlight}, now)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"pending", "failed"}, []string{got[0].ID, got[1].ID})

	assert.Empty(t, SelectStaleSubmissions([]*domain.RecoveryRequest{inFlight}, now, time.Hour))
	stale := SelectStaleSubmissions([]*domain.RecoveryRequest{inFlight, pending}, now, 10*time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, "inflight", stale[0].ID)
}

func seed(t *testing.T, store *memory.Store, r *domain.RecoveryRequest) {
	t.Helper()
	status := r.Status
	r.Status = domain.RecoveryPending
	require.NoError(t, store.Create(context.Background(), r, &domain.AuditLogEntry{
		ID: r.ID + "-created", RecoveryRequestID: r.ID, ActionType: domain.AuditCreated, PerformedAt: t0,
	}))
	if status == domain.RecoveryPending {
		return
	}
	stored, err := store.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	next := stored.Clone()
	next.Status = status
	require.NoError(t, store.Commit(context.Background(), &domain.Commit{Request: next, ExpectedStatus: domain.RecoveryPending}))
}

func TestRunOnceDispatchesSweeps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, req("due", domain.RecoveryApproved, 2))
	seed(t, store, req("stale-pending", domain.RecoveryPending, 0))
	now := t0.Add(49 * time.Hour)
	// due expires later than now
	due, err := store.GetByID(ctx, "due")
	require.NoError(t, err)
	due.ExpiresAt = t0.Add(72 * time.Hour)
	require.NoError(t, store.Commit(ctx, &domain.Commit{Request: due.Clone(), ExpectedStatus: domain.RecoveryApproved}))

	runner := &fakeRunner{}
	s := NewScheduler(runner, store, store, fixedClock{now: now}, nil, nil, Config{})
	require.NoError(t, s.RunOnce(ctx))

	assert.Equal(t, []string{"due"}, runner.executed)
	assert.Equal(t, []string{"stale-pending"}, runner.expired)
	assert.Empty(t, runner.reconciled)
}

func TestExecutableSweepContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, id := range []string{"a", "b", "c"} {
		seed(t, store, req(id, domain.RecoveryApproved, 2))
	}
	runner := &fakeRunner{executeErr: errors.New("boom")}
	s := NewScheduler(runner, store, store, fixedClock{now: t0.Add(time.Hour)}, nil, nil, Config{Parallelism: 2})

	require.NoError(t, s.RunExecutableSweep(ctx))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, runner.executed)
}

func TestRetentionSweepPurgesClosedRequests(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, req("open", domain.RecoveryPending, 0))
	seed(t, store, req("done", domain.RecoveryApproved, 2))
	done, err := store.GetByID(ctx, "done")
	require.NoError(t, err)
	next := done.Clone()
	next.Status = domain.RecoveryExecuted
	require.NoError(t, store.Commit(ctx, &domain.Commit{Request: next, ExpectedStatus: domain.RecoveryApproved}))

	s := NewScheduler(&fakeRunner{}, store, store, fixedClock{now: t0.Add(400 * 24 * time.Hour)}, nil, nil, Config{})
	require.NoError(t, s.RunRetentionSweep(ctx))

	kept, err := store.ListByRequest(ctx, "open")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	purged, err := store.ListByRequest(ctx, "done")
	require.NoError(t, err)
	assert.Empty(t, purged)
}

func TestStartStop(t *testing.T) {
	runner := &fakeRunner{}
	store := memory.NewStore()
	s := NewScheduler(runner, store, store, fixedClock{now: t0}, nil, nil, Config{ExecutableInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	s.Stop()
}
