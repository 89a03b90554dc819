package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	recoveryhttp "github.com/LavaJover/shvark-recovery-service/internal/delivery/http/dto/recovery"
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	usecase "github.com/LavaJover/shvark-recovery-service/internal/usecase/recovery"
	"github.com/labstack/echo/v4"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// RecoveryHandler exposes the recovery workflow over HTTP. Caller identity
// is asserted by the gateway in the actor headers.
type RecoveryHandler struct {
	uc     usecase.RecoveryUsecase
	logger *slog.Logger
}

func NewRecoveryHandler(uc usecase.RecoveryUsecase, logger *slog.Logger) *RecoveryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryHandler{uc: uc, logger: logger.With("component", "http")}
}

func (h *RecoveryHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/audit-log", h.AuditLog)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/retry", h.Retry)
	g.POST("/:id/force-execute", h.ForceExecute)
}

func actorFrom(c echo.Context) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(c.Request().Header.Get(HeaderActorID)),
		Role: domain.ActorRole(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole))),
		Meta: domain.RequestMeta{
			IPAddress: c.RealIP(),
			UserAgent: c.Request().UserAgent(),
		},
	}
	if actor.ID == "" || actor.Role == "" {
		return domain.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing actor headers")
	}
	// the scheduler identity is internal only
	if actor.Role == domain.RoleSystem {
		return domain.Actor{}, echo.NewHTTPError(http.StatusForbidden, "system role is not accepted from callers")
	}
	return actor, nil
}

func (h *RecoveryHandler) Create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body recoveryhttp.CreateRecoveryRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.UserID == "" && actor.Role == domain.RoleUser {
		body.UserID = actor.ID
	}

	input := &recoverydto.RequestRecoveryInput{
		UserID:             body.UserID,
		WalletID:           body.WalletID,
		Reason:             body.Reason,
		WaitingPeriodHours: body.WaitingPeriodHours,
		NewPublicKey:       body.NewPublicKey,
		Metadata:           body.Metadata,
	}
	if body.NewSecretKey != "" {
		input.NewSecretKey = []byte(body.NewSecretKey)
	}

	view, err := h.uc.RequestRecovery(c.Request().Context(), actor, input)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *RecoveryHandler) List(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var q recoveryhttp.ListQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	input := &recoverydto.ListRequestsInput{Page: q.Page, Limit: q.Limit}
	if q.Status != "" {
		status := domain.RecoveryStatus(q.Status)
		input.Status = &status
	}
	if q.UserID != "" {
		input.UserID = &q.UserID
	}
	if q.WalletID != "" {
		input.WalletID = &q.WalletID
	}

	out, err := h.uc.ListRequests(c.Request().Context(), actor, input)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	view, err := h.uc.GetStatus(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RecoveryHandler) AuditLog(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	out, err := h.uc.GetAuditLog(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) Approve(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	view, err := h.uc.Approve(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RecoveryHandler) Reject(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body recoveryhttp.RejectRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.uc.Reject(c.Request().Context(), actor, &recoverydto.RejectInput{
		RequestID: c.Param("id"),
		Reason:    body.Reason,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RecoveryHandler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body recoveryhttp.RejectRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.uc.Cancel(c.Request().Context(), actor, &recoverydto.RejectInput{
		RequestID: c.Param("id"),
		Reason:    body.Reason,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RecoveryHandler) Retry(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	view, err := h.uc.RetryFailed(c.Request().Context(), actor, c.Param("id"))
	return h.executionResponse(c, view, err)
}

func (h *RecoveryHandler) ForceExecute(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body recoveryhttp.ForceExecuteRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.uc.ForceExecute(c.Request().Context(), actor, &recoverydto.ForceExecuteInput{
		RequestID:     c.Param("id"),
		Justification: body.Justification,
	})
	return h.executionResponse(c, view, err)
}

// executionResponse reports a recorded ledger failure with the failed request
// so callers see the persisted reason.
func (h *RecoveryHandler) executionResponse(c echo.Context, view *domain.RecoveryView, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, view)
	}
	recorded := errors.Is(err, domain.ErrLedgerSubmission) || errors.Is(err, domain.ErrEncryption)
	if view != nil && recorded {
		status, code := statusFor(err)
		return c.JSON(status, recoveryhttp.ExecutionFailedResponse{
			ErrorResponse: recoveryhttp.ErrorResponse{Error: err.Error(), Code: code},
			Request:       view,
		})
	}
	return h.respondError(c, err)
}
