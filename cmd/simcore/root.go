// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/simcore/internal/config"
	"github.com/holomush/simcore/internal/logging"
	"github.com/holomush/simcore/internal/runtime"
)

const serviceName = "simcore"

// NewRootCmd creates the root command for the simcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simcore",
		Short: "simcore - a character simulation core",
		Long: `simcore runs a character simulation: status effects on a timer,
item behaviors, an event bus and hot-loadable bundles of commands.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCallCmd())
	cmd.AddCommand(NewBundlesCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// loadConfig reads the config file named by --config, then the flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(cmd.Flags(), path)
}

// newLogger writes to the command's stderr so tests can capture it.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
}

// bootRuntime loads config, builds the runtime and loads the configured
// bundles. The caller closes the runtime.
func bootRuntime(ctx context.Context, cmd *cobra.Command) (*runtime.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd, cfg)

	rt, err := runtime.New(ctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	if err := rt.Boot(ctx); err != nil {
		_ = rt.Close() //nolint:errcheck // boot error takes precedence
		return nil, nil, err
	}
	return rt, logger, nil
}
