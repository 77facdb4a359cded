// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/observability"
	"github.com/holomush/simcore/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Boot the bundles and run the effect scheduler",
		Long: `Boot the configured bundles, then run the effect scheduler and the
metrics endpoint until interrupted. An empty --metrics-addr disables metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, logger, err := bootRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			errutil.LogError(logger, "close runtime", cerr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })

	addr := rt.Config().Metrics.Addr
	if addr != "" {
		srv := observability.NewServer(addr, rt.Ready,
			eventbus.RegisterMetrics,
			effect.RegisterMetrics,
			command.RegisterMetrics,
		)
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("simcore serving",
		"bundles", rt.Loader.Order(),
		"metrics_addr", addr,
		"store", rt.Config().Store.Driver)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("simcore stopped")
	return nil
}
