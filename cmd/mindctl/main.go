// Command mindctl is the operator CLI for the MindReMinder services.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janhstrom/mindreminder-sub000/internal/config"
	"github.com/janhstrom/mindreminder-sub000/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "mindctl",
	Short: "Operate the MindReMinder micro-action services",
	Long: `mindctl applies schema migrations, inspects user stats and replays
dead-lettered outbox events. Connection settings come from the same
environment variables and CONFIG_FILE as the api binary.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the shared setup for subcommands that touch Postgres.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Service: "mindctl"})
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logger, pool: pool}, nil
}

func (e *env) Close() {
	e.pool.Close()
	_ = e.logger.Sync()
}
