package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LavaJover/shvark-recovery-service/internal/delivery/http/handlers"
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	usecase "github.com/LavaJover/shvark-recovery-service/internal/usecase/recovery"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubUsecase answers the calls a test sets up; anything else panics through
// the nil embedded interface.
type stubUsecase struct {
	usecase.RecoveryUsecase

	lastActor domain.Actor
	create    func(*recoverydto.RequestRecoveryInput) (*domain.RecoveryView, error)
	approve   func(string) (*domain.RecoveryView, error)
	retry     func(string) (*domain.RecoveryView, error)
	list      func(*recoverydto.ListRequestsInput) (*recoverydto.ListRequestsOutput, error)
}

func (s *stubUsecase) RequestRecovery(_ context.Context, actor domain.Actor, input *recoverydto.RequestRecoveryInput) (*domain.RecoveryView, error) {
	s.lastActor = actor
	return s.create(input)
}

func (s *stubUsecase) Approve(_ context.Context, actor domain.Actor, id string) (*domain.RecoveryView, error) {
	s.lastActor = actor
	return s.approve(id)
}

func (s *stubUsecase) RetryFailed(_ context.Context, actor domain.Actor, id string) (*domain.RecoveryView, error) {
	s.lastActor = actor
	return s.retry(id)
}

func (s *stubUsecase) ListRequests(_ context.Context, actor domain.Actor, input *recoverydto.ListRequestsInput) (*recoverydto.ListRequestsOutput, error) {
	s.lastActor = actor
	return s.list(input)
}

func newTestServer(uc usecase.RecoveryUsecase) *echo.Echo {
	e := echo.New()
	handlers.NewRecoveryHandler(uc, nil).Register(e.Group("/api/v1/recovery-requests"))
	return e
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func as(id string, role domain.ActorRole) map[string]string {
	return map[string]string{handlers.HeaderActorID: id, handlers.HeaderActorRole: string(role)}
}

func TestCreateDefaultsUserToCaller(t *testing.T) {
	var got *recoverydto.RequestRecoveryInput
	uc := &stubUsecase{create: func(in *recoverydto.RequestRecoveryInput) (*domain.RecoveryView, error) {
		got = in
		return &domain.RecoveryView{ID: "req-1", Status: domain.RecoveryPending}, nil
	}}
	e := newTestServer(uc)

	rec := do(e, http.MethodPost, "/api/v1/recovery-requests",
		`{"wallet_id":"wallet-1","reason":"lost my hardware wallet","waiting_period_hours":12}`,
		as("user-1", domain.RoleUser))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "wallet-1", got.WalletID)
	assert.Equal(t, 12, got.WaitingPeriodHours)
	assert.Equal(t, "user-1", uc.lastActor.ID)

	var view domain.RecoveryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "req-1", view.ID)
}

func TestActorHeadersRequired(t *testing.T) {
	e := newTestServer(&stubUsecase{})

	rec := do(e, http.MethodPost, "/api/v1/recovery-requests/req-1/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/recovery-requests/req-1/approve", "", as("scheduler", domain.RoleSystem))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad", domain.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{domain.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrStaleState, http.StatusConflict, "stale_state"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{domain.ErrTimeLocked, http.StatusTooEarly, "time_locked"},
		{domain.ErrExpired, http.StatusGone, "expired"},
		{domain.ErrQuorumNotMet, http.StatusConflict, "quorum_not_met"},
		{fmt.Errorf("db exploded"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			uc := &stubUsecase{approve: func(string) (*domain.RecoveryView, error) { return nil, tt.err }}
			rec := do(newTestServer(uc), http.MethodPost, "/api/v1/recovery-requests/req-1/approve", "", as("admin-1", domain.RoleAdmin))

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, body["error"], "exploded")
			}
		})
	}
}

func TestRetryReturnsRecordedFailure(t *testing.T) {
	uc := &stubUsecase{retry: func(id string) (*domain.RecoveryView, error) {
		view := &domain.RecoveryView{ID: id, Status: domain.RecoveryFailed, FailureReason: "ledger tx_failed", RetryCount: 2}
		return view, fmt.Errorf("%w: ledger tx_failed", domain.ErrLedgerSubmission)
	}}
	rec := do(newTestServer(uc), http.MethodPost, "/api/v1/recovery-requests/req-1/retry", "", as("admin-1", domain.RoleAdmin))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Code    string              `json:"code"`
		Request domain.RecoveryView `json:"request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ledger_submission_failed", body.Code)
	assert.Equal(t, domain.RecoveryFailed, body.Request.Status)
	assert.Equal(t, 2, body.Request.RetryCount)
}

func TestListParsesQuery(t *testing.T) {
	var got *recoverydto.ListRequestsInput
	uc := &stubUsecase{list: func(in *recoverydto.ListRequestsInput) (*recoverydto.ListRequestsOutput, error) {
		got = in
		return &recoverydto.ListRequestsOutput{}, nil
	}}
	rec := do(newTestServer(uc), http.MethodGet, "/api/v1/recovery-requests?status=approved&page=2&limit=5&wallet_id=w1", "", as("admin-1", domain.RoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Status)
	assert.Equal(t, domain.RecoveryApproved, *got.Status)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 5, got.Limit)
	require.NotNil(t, got.WalletID)
	assert.Equal(t, "w1", *got.WalletID)
	assert.Nil(t, got.UserID)
}
