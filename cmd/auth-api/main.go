// auth-api serves the token lifecycle HTTP API: registration, login,
// refresh-token rotation, logout and the request gate in front of every
// protected route.
//
// Two one-shot modes exist for operators: --migrate-only applies the
// PostgreSQL schema and exits, --purge-expired deletes pairs past the
// TOKEN_RETENTION window and exits (suitable for cron).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/upb/authentication-api/app"
	"github.com/upb/authentication-api/config"
	"github.com/upb/authentication-api/internal/observability"
	"github.com/upb/authentication-api/repositories/postgres"
	"github.com/upb/authentication-api/routes"
)

type options struct {
	envFiles     []string
	migrateOnly  bool
	purgeExpired bool
	help         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("auth-api", pflag.ContinueOnError)
	flagSet.StringSliceVar(&opts.envFiles, "env-file", nil, "extra env file to load before .env (repeatable)")
	flagSet.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	flagSet.BoolVar(&opts.purgeExpired, "purge-expired", false, "delete token pairs past the retention window and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if opts.migrateOnly && opts.purgeExpired {
		return nil, flagSet, fmt.Errorf("--migrate-only and --purge-expired are mutually exclusive")
	}
	return opts, flagSet, nil
}

func run(ctx context.Context, args []string) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		fmt.Fprintf(os.Stderr, "Usage: auth-api [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	cfg, err := config.New(ctx, opts.envFiles...)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("token_store", cfg.Storage.TokenStore),
		zap.String("user_store", cfg.Storage.UserStore))

	if opts.migrateOnly {
		return migrate(ctx, cfg, logger)
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if opts.purgeExpired {
		purged, err := deps.PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}
		logger.Info("expired token pairs purged",
			zap.Int64("purged", purged),
			zap.Duration("retention", cfg.Storage.Retention))
		return nil
	}

	return serve(ctx, cfg, deps, logger)
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.UsesPostgres() {
		return fmt.Errorf("--migrate-only requires a postgres store")
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	if err := factory.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, deps *app.Dependencies, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("auth-api listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled))

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
