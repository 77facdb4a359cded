// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/pkg/errutil"
)

var tracer = otel.Tracer("simcore/command")

// Handler is a group of tools the router can dispatch to.
type Handler interface {
	Tools() []Tool
	Handle(ctx context.Context, name string, args Args) (Result, error)
}

// Authorizer asks event listeners whether a call may proceed.
type Authorizer interface {
	EmitWithOutcome(ctx context.Context, event string, payload any) ([]any, int)
}

// Router dispatches tool calls to the first handler that lists the tool.
type Router struct {
	mu       sync.RWMutex
	handlers []Handler
	auth     Authorizer
	logger   *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAuthorizer emits tool.authorize before each call. A listener that fails
// denies the call.
func WithAuthorizer(auth Authorizer) RouterOption {
	return func(r *Router) { r.auth = auth }
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter creates a router over handlers, consulted in order.
func NewRouter(handlers []Handler, opts ...RouterOption) *Router {
	r := &Router{
		handlers: append([]Handler(nil), handlers...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddHandler appends a handler group.
func (r *Router) AddHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Tools lists every routable tool once, sorted by name. When two handlers list
// the same name, the earlier handler's description is kept.
func (r *Router) Tools() []Tool {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	seen := make(map[string]bool)
	var tools []Tool
	for _, h := range handlers {
		for _, t := range h.Tools() {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			tools = append(tools, t)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (r *Router) resolve(name string) (Handler, Tool, bool) {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		for _, t := range h.Tools() {
			if t.Name == name {
				return h, t, true
			}
		}
	}
	return nil, Tool{}, false
}

// RouteToolCall runs a tool and always returns an envelope: unknown tools,
// denials, handler errors and panics become {success: false, error}.
func (r *Router) RouteToolCall(ctx context.Context, name string, args Args, cc CallContext) (result Result) {
	ctx, span := tracer.Start(ctx, "tool.call",
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("caller.id", cc.CallerID),
		),
	)
	metrics := NewMetricsRecorder(name)
	defer func() {
		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()
		metrics.Record()
	}()

	if args == nil {
		args = Args{}
	}

	h, tool, ok := r.resolve(name)
	if !ok {
		metrics.SetStatus(StatusNotFound)
		return Failure("Unknown tool: %s", name)
	}
	metrics.SetCommandSource(tool.Source)
	span.SetAttributes(attribute.String("tool.source", tool.Source))

	if err := r.authorize(ctx, tool, cc); err != nil {
		span.RecordError(err)
		metrics.SetStatus(StatusPermissionDenied)
		errutil.LogErrorContext(ctx, r.logger, "tool call denied", err, "tool", name, "caller_id", cc.CallerID)
		return FailureFrom(err)
	}

	result, err := r.invoke(WithCallContext(ctx, cc), h, name, args)
	if err != nil {
		span.RecordError(err)
		metrics.SetStatus(StatusError)
		errutil.LogErrorContext(ctx, r.logger, "tool call failed", err, "tool", name, "caller_id", cc.CallerID)
		return FailureFrom(err)
	}
	metrics.SetResult(result)
	return result
}

func (r *Router) authorize(ctx context.Context, tool Tool, cc CallContext) error {
	if r.auth == nil {
		return nil
	}
	results, failed := r.auth.EmitWithOutcome(ctx, eventbus.EventToolAuthorize, eventbus.ToolAuthorize{
		Tool:         tool.Name,
		CallerID:     cc.CallerID,
		Capabilities: append([]string(nil), cc.Capabilities...),
		Required:     tool.Capability,
	})
	if failed > 0 {
		return ErrPermissionDenied(tool.Name, "authorization check failed")
	}
	for _, res := range results {
		if d, ok := res.(eventbus.Decision); ok && !d.Allow {
			return ErrPermissionDenied(tool.Name, d.Reason)
		}
	}
	return nil
}

func (r *Router) invoke(ctx context.Context, h Handler, name string, args Args) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = oops.Code(CodeHandlerPanic).With("tool", name).Errorf("tool handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, name, args)
}
