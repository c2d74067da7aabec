package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lendingdesk/internal/access"
	"lendingdesk/internal/auth"
	"lendingdesk/internal/server"
	"lendingdesk/internal/store"
	"lendingdesk/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), migrate, cmd.Flags().Changed("migrate"))
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving (default from MIGRATE_ON_START)")
	return cmd
}

func serve(ctx context.Context, migrate, migrateSet bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure, version)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			logger.Warn("flush telemetry", zap.Error(err))
		}
	}()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if !migrateSet {
		migrate = cfg.MigrationsOnRun
	}
	if migrate {
		if err := db.Migrate(ctx, logger, store.MigrateUp); err != nil {
			return err
		}
	}

	services := server.NewServices(db, logger, store.SystemClock(cfg.Location), nil)
	handler := server.NewRouter(server.Options{
		Sessions:          auth.NewSessions([]byte(cfg.SessionSecret), cfg.SessionName, cfg.SecureCookies),
		Policy:            access.Policy{AllowUnassignedSchema: cfg.AllowUnassignedSchema},
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Health:            db.PingContext,
	}, services, logger)

	srv := server.NewHTTPServer(":"+cfg.Port, handler)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
