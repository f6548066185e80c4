// Package cli implements storefrontctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vjcreations/storefront/internal/config"
	"github.com/vjcreations/storefront/internal/store/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "storefrontctl",
	Short: "Operate the storefront database",
	Long: `storefrontctl prepares a storefront database: it applies the schema,
imports fixture products and accounts, and creates administrators.

Connection settings come from the same environment variables the API reads.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type environment struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  *postgres.Store
}

func (e *environment) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// connect loads configuration and opens the database with the schema applied.
func connect(ctx context.Context) (*environment, error) {
	bootstrap := config.NewLogger("info")
	config.LoadEnv(bootstrap)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	s, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnectAttempts: cfg.DBConnectAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, store: s}, nil
}
