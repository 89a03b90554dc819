package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/app/setup"
	"github.com/LavaJover/shvark-recovery-service/internal/config"
	"github.com/LavaJover/shvark-recovery-service/internal/delivery/grpcapi"
	httpapi "github.com/LavaJover/shvark-recovery-service/internal/delivery/http"
	"github.com/LavaJover/shvark-recovery-service/internal/delivery/http/handlers"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/logger"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/migrate"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/postgres"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/sealing"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
)

const shutdownTimeout = 15 * time.Second

func loadConfig(cmd *cli.Command) (*config.RecoveryConfig, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Setup(cfg.LogConfig), nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API, gRPC health endpoint and background sweeps",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := setup.InitializeDependencies(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Error("failed to release dependencies", "error", err)
		}
	}()
	ucs := setup.InitializeUseCases(deps)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := httpapi.NewServer(handlers.NewRecoveryHandler(ucs.RecoveryUsecase, log), deps.Registry, log)
	e.Server.ReadTimeout = cfg.HTTPServer.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTPServer.WriteTimeout

	grpcServer := grpc.NewServer()
	health := grpcapi.NewHealthServer(deps.Ping, log)
	health.Register(grpcServer)

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.GRPCServer.Host, cfg.GRPCServer.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errChan := make(chan error, 2)
	go func() {
		addr := net.JoinHostPort(cfg.HTTPServer.Host, cfg.HTTPServer.Port)
		log.Info("HTTP server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	go func() {
		log.Info("gRPC server running", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- err
		}
	}()
	go health.Watch(ctx, 30*time.Second)

	if cfg.Scheduler.Enabled {
		ucs.Scheduler.Start(ctx)
	} else {
		log.Warn("scheduler disabled, due requests will only run on manual retry")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errChan:
		log.Error("server error", "error", err)
		stop()
		ucs.Scheduler.Stop()
		grpcServer.Stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	health.Shutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", "error", err)
	}
	grpcServer.GracefulStop()
	ucs.Scheduler.Stop()

	log.Info("server stopped")
	return nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back database migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, log, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					db, err := postgres.InitDB(cfg)
					if err != nil {
						return err
					}
					return migrate.RunMigrations(db, cfg.RecoveryDB.MigrationsPath, log)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "Number of migrations to roll back"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, log, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					steps := cmd.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be positive, got %d", steps)
					}
					db, err := postgres.InitDB(cfg)
					if err != nil {
						return err
					}
					return migrate.Rollback(db, cfg.RecoveryDB.MigrationsPath, steps, log)
				},
			},
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run every background sweep once and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deps, err := setup.InitializeDependencies(cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return setup.InitializeUseCases(deps).Scheduler.RunOnce(ctx)
		},
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate an age keypair for sealing recovery key material",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			identity, recipient, err := sealing.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "# public key: %s\n%s\n", recipient, identity.String())
			return nil
		},
	}
}
