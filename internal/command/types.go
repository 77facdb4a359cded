// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package command provides the command registry and the tool router that
// exposes registered commands to an outer protocol adapter.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/samber/oops"
)

// ExecuteFunc runs a command. Handlers validate their own arguments.
type ExecuteFunc func(ctx context.Context, args Args) (Result, error)

// Command is a named, externally invocable operation.
type Command struct {
	Name        string
	Description string
	Usage       string
	// Capability, when set, is the capability the caller must hold.
	Capability string
	// Source names the bundle that registered the command.
	Source  string
	Execute ExecuteFunc
}

// Validate checks that the command has a name and an implementation.
func (c Command) Validate() error {
	if c.Name == "" {
		return oops.Code(CodeInvalidCommand).With("field", "name").Errorf("command name cannot be empty")
	}
	if c.Execute == nil {
		return oops.Code(CodeInvalidCommand).
			With("command", c.Name).
			With("field", "execute").
			Errorf("command %q has no execute function", c.Name)
	}
	return nil
}

// Tool describes a routable operation.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Usage       string `json:"usage,omitempty"`
	Capability  string `json:"capability,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Tool returns the command's tool description.
func (c Command) Tool() Tool {
	return Tool{
		Name:        c.Name,
		Description: c.Description,
		Usage:       c.Usage,
		Capability:  c.Capability,
		Source:      c.Source,
	}
}

// Args are the decoded arguments of a call.
type Args map[string]any

// String returns a string argument.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok && v != ""
}

// Int returns an integer argument, accepting JSON numbers and numeric strings.
func (a Args) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		// float64(math.MaxInt) rounds up to 2^63, itself out of range.
		if v != math.Trunc(v) || v < math.MinInt || v >= math.MaxInt {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Result is the uniform call envelope. Payload keys are flattened next to
// success and error when marshalled.
type Result struct {
	Success bool
	Error   string
	Payload map[string]any
}

// Success builds a successful envelope.
func Success(payload map[string]any) Result {
	return Result{Success: true, Payload: payload}
}

// Failure builds a failed envelope.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// FailureFrom builds a failed envelope from an error.
func FailureFrom(err error) Result {
	return Result{Error: Message(err)}
}

// MarshalJSON renders {success, error?, ...payload}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	} else {
		delete(out, "error")
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads an envelope produced by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	success, _ := raw["success"].(bool)
	errText, _ := raw["error"].(string)
	delete(raw, "success")
	delete(raw, "error")
	*r = Result{Success: success, Error: errText}
	if len(raw) > 0 {
		r.Payload = raw
	}
	return nil
}

// CallContext identifies the caller of a tool.
type CallContext struct {
	CallerID     string
	Capabilities []string
}

type callContextKey struct{}

// WithCallContext attaches cc to ctx.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom returns the CallContext attached by the router.
func CallContextFrom(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}
