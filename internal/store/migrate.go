package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migration commands understood by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }

func setupGoose(logger *zap.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: logger.Sugar()})
	if err := goose.SetDialect(driverName); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Migrate runs one goose command against the embedded migrations.
func (db *DB) Migrate(ctx context.Context, logger *zap.Logger, command string) error {
	if err := setupGoose(logger); err != nil {
		return err
	}

	ctx, span := db.Span(ctx, "migrate."+command)
	defer span.End()

	switch command {
	case MigrateUp:
		if err := goose.UpContext(ctx, db.DB.DB, migrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case MigrateDown:
		if err := goose.DownContext(ctx, db.DB.DB, migrationsDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case MigrateStatus:
		if err := goose.StatusContext(ctx, db.DB.DB, migrationsDir); err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
	case MigrateVersion:
		version, err := goose.GetDBVersionContext(ctx, db.DB.DB)
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		logger.Info("database version", zap.Int64("version", version))
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	return nil
}
