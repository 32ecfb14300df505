// Command api runs the messaging HTTP API together with its River workers and the scheduled message poller.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/config"
	"github.com/msgdesk/hub/pkg/database"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := NewApp(cfg, db)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	runErr := app.Run(ctx)

	slog.Info("shutting down", "timeout", shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, app.Shutdown(shutdownCtx))
}

// openDatabase connects and brings both the application schema and the River tables up to date.
func openDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithMaxConns(int32(min(cfg.DatabaseMaxConns, math.MaxInt32))), //nolint:gosec // clamped
		database.WithHealthCheckPeriod(cfg.DatabaseHealthCheckPeriod),
	)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	if err := database.MigrateRiver(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

// parseLevel accepts debug, info, warn and error in any case. Anything else logs at info.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}

	return level
}
