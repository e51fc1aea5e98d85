// Command finexctl administers a finex ledger store from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"finex/internal/auth"
	"finex/internal/backend"
	"finex/internal/cli"
	"finex/internal/config"
	"finex/internal/core"
	"finex/internal/log"
)

var (
	verbose bool
	rootCmd = &cobra.Command{
		Use:           "finexctl",
		Short:         "Administer a finex ledger",
		Long:          `finexctl runs migrations, manages categories and roles, and exports ledgers as CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend activity")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(exportCmd())
}

func main() {
	cli.LoadEnvFile()

	ctx, cancel := cli.SignalContext(log.Nop())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment the same way the servers do.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *log.Logger {
	if !verbose {
		return log.Nop()
	}
	return cli.SetupLogger(cfg, log.ComponentCLI)
}

// openBackend builds the configured backend. The caller must Close the result.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(newLogger(cfg)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}
	return res, nil
}

// actingAs scopes ctx to principal, rejecting an empty one.
func actingAs(ctx context.Context, principal string) (context.Context, error) {
	if principal == "" {
		return nil, fmt.Errorf("--principal is required")
	}
	return auth.WithPrincipal(ctx, core.Principal(principal)), nil
}
