// Package cmd defines and implements the CLI commands for the
// channelharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/config"
	"github.com/kestreldata/channelharvest/internal/logging"
)

var cfgFile string

// runtimeKeyType is the key for storing the runtime in the command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime bundles the services every subcommand needs.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channelharvest",
		Short: "Resumable, quota-aware ingestion of channel and video metadata",
		Long: `channelharvest walks an ordered list of channel handles, fetches each
channel's profile, uploads and per-video statistics through a pool of
rate-limited API credentials, and upserts the merged rows into Postgres.
Progress is checkpointed after every completed handle, so an interrupted or
quota-stopped run resumes where it left off.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync() //nolint:errcheck
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newTagCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// Execute is the main entry point. The returned error is mapped to an exit
// code by main; harvest.ErrCredentialsExhausted is the documented
// quota-stop status.
func Execute() error {
	cmd := newRootCmd()
	cmd.SilenceUsage = true
	return cmd.Execute()
}
