// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/pkg/errutil"
)

// NewBundlesCmd creates the bundles subcommand group.
func NewBundlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Inspect and validate bundles",
	}
	cmd.AddCommand(newBundlesListCmd())
	cmd.AddCommand(newBundlesValidateCmd())
	return cmd
}

func newBundlesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Boot the configured bundles and list them in load order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, logger, err := bootRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(); cerr != nil {
					errutil.LogError(logger, "close runtime", cerr)
				}
			}()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tCOMMANDS\tLOCATION")
			for _, name := range rt.Loader.Order() {
				lb, ok := rt.Loader.Get(name)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					lb.Manifest.Name, lb.Version, commandNames(lb), lb.Location)
			}
			return w.Flush()
		},
	}
}

func commandNames(lb *bundle.LoadedBundle) string {
	if len(lb.Commands) == 0 {
		return "-"
	}
	names := make([]string, 0, len(lb.Commands))
	for name := range lb.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func newBundlesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>...",
		Short: "Check bundle directories without loading them",
		Long: `Validate each bundle directory: the manifest against the bundle schema,
then every listed module. Dependencies are not checked.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, dir := range args {
				m, err := bundle.Check(cmd.Context(), bundle.Dir{Path: dir})
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %s\n", dir, bundle.FormatSchemaError(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s %s)\n", dir, m.Name, m.Version)
			}
			if failed > 0 {
				return oops.Errorf("%d of %d bundles failed validation", failed, len(args))
			}
			return nil
		},
	}
}
