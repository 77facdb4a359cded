// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/pkg/errutil"
)

// CodeCallFailed marks a call whose envelope reported failure.
const CodeCallFailed = "CALL_FAILED"

type callOptions struct {
	caller       string
	capabilities []string
}

// NewCallCmd creates the call subcommand.
func NewCallCmd() *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Boot the bundles and run a single tool call",
		Long: `Boot the configured bundles, route one tool call and print the result
envelope as JSON. Arguments are a JSON object. The command fails when the
envelope reports failure. State persists between calls only with the
sqlite store.`,
		Example: `  simcore call character.create '{"name":"Ash"}' --capability 'characters.*'
  simcore call effect.list`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.caller, "caller", "cli", "caller id")
	cmd.Flags().StringSliceVar(&opts.capabilities, "capability", nil, "capability patterns held by the caller")
	return cmd
}

func runCall(cmd *cobra.Command, opts *callOptions, args []string) error {
	toolArgs := command.Args{}
	if len(args) == 2 && args[1] != "" {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return oops.Code(command.CodeInvalidArgs).With("tool", args[0]).Wrapf(err, "arguments must be a JSON object")
		}
	}

	ctx := cmd.Context()
	rt, logger, err := bootRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			errutil.LogError(logger, "close runtime", cerr)
		}
	}()

	result := rt.Call(ctx, args[0], toolArgs, command.CallContext{
		CallerID:     opts.caller,
		Capabilities: opts.capabilities,
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return oops.With("tool", args[0]).Wrapf(err, "encode result")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !result.Success {
		return oops.Code(CodeCallFailed).With("tool", args[0]).Errorf("%s", result.Error)
	}
	return nil
}
