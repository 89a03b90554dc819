package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LavaJover/shvark-recovery-service/internal/config"
	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	publisher "github.com/LavaJover/shvark-recovery-service/internal/infrastructure/kafka"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/ledger"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/memory"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/notifier"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres/repository"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/sealing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

type Dependencies struct {
	Config       *config.RecoveryConfig
	Logger       *slog.Logger
	DB           *gorm.DB
	Registry     *prometheus.Registry
	Metrics      *metrics.RecoveryMetrics
	Publisher    *publisher.KafkaPublisher
	Notifier     domain.Notifier
	Sealer       domain.Sealer
	Opener       domain.Opener
	Ledger       domain.LedgerClient
	Repositories *Repositories
}

type Repositories struct {
	RecoveryRepo domain.RecoveryRepository
	AuditReader  domain.AuditReader
	Retention    domain.AuditRetention
	SignerRepo   domain.SignerDirectory
}

func InitializeDependencies(cfg *config.RecoveryConfig, logger *slog.Logger) (*Dependencies, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recoveryMetrics := metrics.NewRecoveryMetrics(registry)

	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  recoveryMetrics,
	}

	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	sealer, err := sealing.NewSealer(cfg.Sealing.Recipient)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("sealer: %w", err)
	}
	opener, err := sealing.NewOpenerFromFile(cfg.Sealing.IdentityFile)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("opener: %w", err)
	}
	deps.Sealer = sealer
	deps.Opener = opener

	deps.Ledger = ledger.NewHTTPLedgerClient(cfg.Ledger.BaseURL, cfg.Ledger.APIToken, cfg.Ledger.Timeout)

	if err := deps.initNotifier(); err != nil {
		deps.Close()
		return nil, fmt.Errorf("notifier: %w", err)
	}
	return deps, nil
}

func (d *Dependencies) initStorage() error {
	switch d.Config.RecoveryDB.Driver {
	case "memory":
		d.Logger.Warn("using in-memory storage, state is lost on restart")
		store := memory.NewStore()
		d.Repositories = &Repositories{
			RecoveryRepo: store,
			AuditReader:  store,
			Retention:    store,
			SignerRepo:   store,
		}
		return nil
	default:
		db, err := postgres.InitDB(d.Config)
		if err != nil {
			return err
		}
		d.DB = db
		recoveryRepo := repository.NewDefaultRecoveryRepository(db)
		d.Repositories = &Repositories{
			RecoveryRepo: recoveryRepo,
			AuditReader:  recoveryRepo,
			Retention:    recoveryRepo,
			SignerRepo:   repository.NewDefaultSignerRepository(db),
		}
		return nil
	}
}

func (d *Dependencies) initNotifier() error {
	sinks := notifier.Fanout{notifier.NewLogNotifier(d.Logger)}
	if d.Config.KafkaService.Enabled() {
		pub, err := publisher.NewKafkaPublisher(publisher.KafkaConfig{
			Brokers:    d.Config.KafkaService.Brokers(),
			Topic:      d.Config.KafkaService.Topic,
			Username:   d.Config.KafkaService.Username,
			Password:   d.Config.KafkaService.Password,
			Mechanism:  d.Config.KafkaService.Mechanism,
			TLSEnabled: d.Config.KafkaService.TLSEnabled,
		})
		if err != nil {
			return err
		}
		d.Publisher = pub
		sinks = append(sinks, publisher.NewRecoveryNotifier(pub, pub.Topic(), d.Metrics, d.Logger))
	}
	if d.Config.Callback.URL != "" {
		callback, err := notifier.NewCallbackNotifier(d.Config.Callback.URL, d.Metrics, d.Logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, callback)
	}
	d.Notifier = sinks
	return nil
}

// Ping checks the database connection; the memory driver is always ready.
func (d *Dependencies) Ping(ctx context.Context) error {
	if d.DB == nil {
		return nil
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Dependencies) Close() error {
	var errs []error
	if d.Publisher != nil {
		errs = append(errs, d.Publisher.Close())
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
