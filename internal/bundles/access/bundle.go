// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access is the built-in bundle that answers tool.authorize.
//
// A tool with no capability is always allowed. Otherwise the caller needs a
// capability pattern matching it, either presented with the call or granted
// through the enforcer (configured grants or access.grant).
package access

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/oops"

	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/eventbus"
)

//go:embed bundle.yaml
var manifest []byte

// AdminCapability guards the grant commands.
const AdminCapability = "access.admin"

// Deps configure the bundle.
type Deps struct {
	// Grants maps caller ids to capability patterns. Everyone applies to all callers.
	Grants map[string][]string
	Logger *slog.Logger
}

// Bundle returns the access bundle descriptor and the enforcer it consults.
func Bundle(deps Deps) (bundle.Static, *Enforcer, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	enforcer := NewEnforcer()
	callers := make([]string, 0, len(deps.Grants))
	for caller := range deps.Grants {
		callers = append(callers, caller)
	}
	sort.Strings(callers)
	for _, caller := range callers {
		if err := enforcer.SetGrants(caller, deps.Grants[caller]); err != nil {
			return bundle.Static{}, nil, oops.In("access").Wrapf(err, "configure grants for %s", caller)
		}
	}

	return bundle.Static{
		Manifest: manifest,
		Modules: map[string]any{
			"commands/access.grant":  grantCommand(enforcer),
			"commands/access.revoke": revokeCommand(enforcer),
			"commands/access.list":   listCommand(enforcer),
			"events/authorize":       bundle.EventFunc(authorize(enforcer, deps.Logger)),
		},
	}, enforcer, nil
}

// authorizePriority runs the check ahead of other tool.authorize listeners.
const authorizePriority = 1000

func authorize(e *Enforcer, logger *slog.Logger) func(context.Context, eventbus.Subscriber) error {
	return func(_ context.Context, sub eventbus.Subscriber) error {
		sub.On(eventbus.EventToolAuthorize, func(ctx context.Context, ev eventbus.Event) (any, error) {
			req, ok := ev.Payload.(eventbus.ToolAuthorize)
			if !ok {
				return nil, fmt.Errorf("unexpected payload %T", ev.Payload)
			}
			if req.Required == "" || e.Check(req.CallerID, req.Required, req.Capabilities...) {
				return eventbus.Allow(), nil
			}
			logger.DebugContext(ctx, "capability missing",
				"tool", req.Tool,
				"caller_id", req.CallerID,
				"capability", req.Required)
			return eventbus.Deny("missing capability " + req.Required), nil
		}, eventbus.WithPriority(authorizePriority))
		return nil
	}
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, len(list) > 0
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, len(out) > 0
	case string:
		return []string{list}, list != ""
	default:
		return nil, false
	}
}

func grantCommand(e *Enforcer) command.Command {
	const usage = "access.grant {callerId, capabilities}"
	return command.Command{
		Name:        "access.grant",
		Description: "Add capability patterns to a caller.",
		Usage:       usage,
		Capability:  AdminCapability,
		Execute: func(_ context.Context, args command.Args) (command.Result, error) {
			caller, okCaller := args.String("callerId")
			patterns, okPatterns := stringList(args["capabilities"])
			if !okCaller || !okPatterns {
				return command.Result{}, command.ErrInvalidArgs("access.grant", usage)
			}
			merged := append(e.GetGrants(caller), patterns...)
			if err := e.SetGrants(caller, merged); err != nil {
				return command.FailureFrom(err), nil
			}
			return command.Success(map[string]any{"callerId": caller, "capabilities": e.GetGrants(caller)}), nil
		},
	}
}

func revokeCommand(e *Enforcer) command.Command {
	const usage = "access.revoke {callerId}"
	return command.Command{
		Name:        "access.revoke",
		Description: "Remove every capability granted to a caller.",
		Usage:       usage,
		Capability:  AdminCapability,
		Execute: func(_ context.Context, args command.Args) (command.Result, error) {
			caller, ok := args.String("callerId")
			if !ok {
				return command.Result{}, command.ErrInvalidArgs("access.revoke", usage)
			}
			if !e.RemoveGrants(caller) {
				return command.Failure("%s has no grants.", caller), nil
			}
			return command.Success(map[string]any{"callerId": caller}), nil
		},
	}
}

func listCommand(e *Enforcer) command.Command {
	return command.Command{
		Name:        "access.list",
		Description: "List capability grants by caller.",
		Usage:       "access.list",
		Capability:  AdminCapability,
		Execute: func(context.Context, command.Args) (command.Result, error) {
			grants := make(map[string][]string)
			for _, caller := range e.Callers() {
				grants[caller] = e.GetGrants(caller)
			}
			return command.Success(map[string]any{"grants": grants}), nil
		},
	}
}
