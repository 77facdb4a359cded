// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/holomush/simcore/internal/eventbus"
)

// Publisher is the part of the event bus the registry needs.
type Publisher interface {
	Publish(ctx context.Context, payload eventbus.Payload)
}

// Registry manages command registration and lookup.
// It is thread-safe for concurrent access.
type Registry struct {
	commands map[string]Command
	mu       sync.RWMutex
	bus      Publisher
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPublisher publishes command.executed after every Execute.
func WithPublisher(bus Publisher) RegistryOption {
	return func(r *Registry) { r.bus = bus }
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a new command registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		commands: make(map[string]Command),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command to the registry.
// If a command with the same name exists, it is overwritten and a warning is
// logged: last registration wins.
func (r *Registry) Register(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.commands[cmd.Name]; ok {
		r.logger.Warn("command conflict: overwriting existing command",
			"command", cmd.Name,
			"previous_source", existing.Source,
			"new_source", cmd.Source)
	}

	r.commands[cmd.Name] = cmd
	return nil
}

// Unregister removes a command by name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[name]; !ok {
		return false
	}
	delete(r.commands, name)
	return true
}

// UnregisterOwned removes a command only while it still belongs to source.
func (r *Registry) UnregisterOwned(name, source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.commands[name]
	if !ok || existing.Source != source {
		return false
	}
	delete(r.commands, name)
	return true
}

// Get retrieves a command by name.
// Returns the command and true if found, or zero value and false if not found.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	return cmd, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns all registered commands sorted by name.
// The returned slice is a copy and safe to modify.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Execute runs the named command and returns its result unmodified. It fails
// with a NOT_FOUND error when the command is absent.
func (r *Registry) Execute(ctx context.Context, name string, args Args) (Result, error) {
	cmd, ok := r.Get(name)
	if !ok {
		return Result{}, ErrNotFound(name)
	}

	start := time.Now()
	result, err := cmd.Execute(ctx, args)
	r.publish(ctx, cmd, args, result, err, time.Since(start))
	return result, err
}

func (r *Registry) publish(ctx context.Context, cmd Command, args Args, result Result, err error, took time.Duration) {
	if r.bus == nil {
		return
	}
	payload := eventbus.CommandExecuted{
		Command:  cmd.Name,
		Source:   cmd.Source,
		Args:     args,
		Success:  err == nil && result.Success,
		Error:    result.Error,
		Duration: took,
	}
	if err != nil {
		payload.Error = Message(err)
	}
	if cc, ok := CallContextFrom(ctx); ok {
		payload.CallerID = cc.CallerID
	}
	r.bus.Publish(ctx, payload)
}

// Tools implements Handler: every registered command is a tool.
func (r *Registry) Tools() []Tool {
	cmds := r.All()
	tools := make([]Tool, 0, len(cmds))
	for _, c := range cmds {
		tools = append(tools, c.Tool())
	}
	return tools
}

// Handle implements Handler.
func (r *Registry) Handle(ctx context.Context, name string, args Args) (Result, error) {
	return r.Execute(ctx, name, args)
}
