package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
	recoverydto "github.com/LavaJover/shvark-recovery-service/internal/usecase/dto/recovery"
	"github.com/LavaJover/shvark-recovery-service/internal/usecase/executor"
	"golang.org/x/sync/singleflight"
)

type RecoveryUsecase interface {
	RequestRecovery(ctx context.Context, actor domain.Actor, input *recoverydto.RequestRecoveryInput) (*domain.RecoveryView, error)
	Approve(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error)
	Reject(ctx context.Context, actor domain.Actor, input *recoverydto.RejectInput) (*domain.RecoveryView, error)
	Cancel(ctx context.Context, actor domain.Actor, input *recoverydto.RejectInput) (*domain.RecoveryView, error)
	RetryFailed(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error)
	ForceExecute(ctx context.Context, actor domain.Actor, input *recoverydto.ForceExecuteInput) (*domain.RecoveryView, error)

	GetStatus(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error)
	ListRequests(ctx context.Context, actor domain.Actor, input *recoverydto.ListRequestsInput) (*recoverydto.ListRequestsOutput, error)
	GetAuditLog(ctx context.Context, actor domain.Actor, requestID string) (*recoverydto.AuditLogOutput, error)

	// Scheduler entry points.
	Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.RecoveryView, error)
	Expire(ctx context.Context, requestID string) (*domain.RecoveryView, error)
	ReconcileSubmission(ctx context.Context, requestID string) (*domain.RecoveryView, error)
}

// Executor is the ledger-facing half of execution.
type Executor interface {
	Execute(ctx context.Context, req *domain.RecoveryRequest) (*executor.Result, error)
	Reconcile(ctx context.Context, req *domain.RecoveryRequest) (*domain.LedgerReceipt, bool, error)
	CurrentUserSigner(ctx context.Context, walletID string) (*domain.Signer, error)
}

type Config struct {
	WaitingPeriodHours  int
	RequiredApprovals   int
	ExpiryWindow        time.Duration
	ForceExecuteEnabled bool
	// ApproveAttempts bounds re-reads after a compare-and-set conflict.
	ApproveAttempts int
	MinReasonLength int
}

func (c Config) withDefaults() Config {
	if c.WaitingPeriodHours == 0 {
		c.WaitingPeriodHours = domain.DefaultWaitingPeriodHours
	}
	if c.RequiredApprovals == 0 {
		c.RequiredApprovals = domain.DefaultRequiredApprovals
	}
	if c.ExpiryWindow <= 0 {
		c.ExpiryWindow = domain.DefaultExpiryWindow
	}
	if c.ApproveAttempts <= 0 {
		c.ApproveAttempts = 5
	}
	return c
}

const minJustificationLength = 20

type DefaultRecoveryUsecase struct {
	repo     domain.RecoveryRepository
	audit    domain.AuditReader
	signers  domain.SignerDirectory
	executor Executor
	sealer   domain.Sealer
	notifier domain.Notifier
	clock    domain.Clock
	metrics  *metrics.RecoveryMetrics
	logger   *slog.Logger
	cfg      Config

	// inflight collapses concurrent executions of the same request in this
	// process; the persisted submission marker covers other processes.
	inflight singleflight.Group
}

func NewDefaultRecoveryUsecase(
	repo domain.RecoveryRepository,
	audit domain.AuditReader,
	signers domain.SignerDirectory,
	exec Executor,
	sealer domain.Sealer,
	notifier domain.Notifier,
	clock domain.Clock,
	recoveryMetrics *metrics.RecoveryMetrics,
	logger *slog.Logger,
	cfg Config,
) *DefaultRecoveryUsecase {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &DefaultRecoveryUsecase{
		repo:     repo,
		audit:    audit,
		signers:  signers,
		executor: exec,
		sealer:   sealer,
		notifier: notifier,
		clock:    clock,
		metrics:  recoveryMetrics,
		logger:   logger.With("component", "recovery"),
		cfg:      cfg.withDefaults(),
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, domain.RecoveryEvent) {}
