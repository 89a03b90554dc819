package setup

import (
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/app/background"
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/usecase/executor"
	recoveryuc "github.com/LavaJover/shvark-recovery-service/internal/usecase/recovery"
)

type UseCases struct {
	RecoveryUsecase *recoveryuc.DefaultRecoveryUsecase
	Scheduler       *background.Scheduler
}

func InitializeUseCases(deps *Dependencies) *UseCases {
	cfg := deps.Config
	clock := domain.SystemClock{}

	exec := executor.New(
		deps.Ledger,
		deps.Opener,
		deps.Repositories.SignerRepo,
		deps.Metrics,
		deps.Logger.With("component", "executor"),
		executor.Config{Timeout: cfg.Ledger.MaxElapsed},
	)

	recoveryUsecase := recoveryuc.NewDefaultRecoveryUsecase(
		deps.Repositories.RecoveryRepo,
		deps.Repositories.AuditReader,
		deps.Repositories.SignerRepo,
		exec,
		deps.Sealer,
		deps.Notifier,
		clock,
		deps.Metrics,
		deps.Logger,
		recoveryuc.Config{
			WaitingPeriodHours:  cfg.Recovery.WaitingPeriodHours,
			RequiredApprovals:   cfg.Recovery.RequiredApprovals,
			ExpiryWindow:        cfg.Recovery.ExpiryWindow,
			ForceExecuteEnabled: cfg.Recovery.ForceExecuteEnabled,
			ApproveAttempts:     cfg.Recovery.ApproveAttempts,
			MinReasonLength:     cfg.Recovery.MinReasonLength,
		},
	)

	scheduler := background.NewScheduler(
		recoveryUsecase,
		deps.Repositories.RecoveryRepo,
		deps.Repositories.Retention,
		clock,
		deps.Metrics,
		deps.Logger,
		background.Config{
			ExecutableInterval:   cfg.Scheduler.ExecutableInterval,
			ExpiryInterval:       cfg.Scheduler.ExpiryInterval,
			RetentionInterval:    cfg.Scheduler.RetentionInterval,
			ReconcileInterval:    cfg.Scheduler.ReconcileInterval,
			AuditRetention:       time.Duration(cfg.Scheduler.AuditRetentionDays) * 24 * time.Hour,
			RetryInterval:        cfg.Scheduler.RetryInterval,
			MaxAutoRetries:       cfg.Scheduler.MaxAutoRetries,
			Parallelism:          cfg.Scheduler.Parallelism,
			SubmissionStaleAfter: cfg.Scheduler.SubmissionStaleAfter,
		},
	)

	return &UseCases{
		RecoveryUsecase: recoveryUsecase,
		Scheduler:       scheduler,
	}
}
