// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package runtime wires the simulation services together and boots bundles
// in their configured order.
package runtime

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/samber/oops"

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/bundle"
	bundlelua "github.com/holomush/simcore/internal/bundle/lua"
	"github.com/holomush/simcore/internal/bundles/access"
	"github.com/holomush/simcore/internal/bundles/core"
	"github.com/holomush/simcore/internal/bundles/survival"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/config"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
	"github.com/holomush/simcore/internal/world/memstore"
	"github.com/holomush/simcore/internal/world/sqlite"
)

// Options configure New. Zero fields get defaults.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Clock drives effects and bundle timestamps.
	Clock clockwork.Clock
	// Store overrides the store selected by Config.Store.
	Store world.Store
}

// Runtime owns every service. Create it with New.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	Bus       *eventbus.Bus
	Store     world.Store
	Behaviors *behavior.Registry
	Commands  *command.Registry
	Effects   *effect.Storage
	Catalog   *effect.Catalog
	Scheduler *effect.Scheduler
	Loader    *bundle.Loader
	Router    *command.Router
	Access    *access.Enforcer

	booted atomic.Bool
}

// New constructs the services and registers the built-in bundles in the
// loader's catalog. Nothing is loaded until Boot.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(nil, ""); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	r := &Runtime{cfg: cfg, logger: logger, Store: store}
	r.Bus = eventbus.New(eventbus.WithLogger(logger), eventbus.WithClock(clock.Now))
	r.Behaviors = behavior.NewRegistry(behavior.WithLogger(logger))
	r.Commands = command.NewRegistry(command.WithPublisher(r.Bus), command.WithRegistryLogger(logger))
	r.Effects = effect.NewStorage(store,
		effect.WithClock(clock),
		effect.WithPublisher(r.Bus),
		effect.WithLogger(logger))
	r.Catalog = effect.NewBuiltinCatalog()
	r.Scheduler = effect.NewScheduler(r.Effects, cfg.Effects.Resolution, cfg.Effects.SweepInterval, logger)
	r.Loader = bundle.NewLoader(r.Bus, r.Behaviors, r.Commands,
		bundle.WithClock(clock),
		bundle.WithLogger(logger),
		bundle.WithLuaRuntime(bundlelua.NewRuntime(
			bundlelua.WithEmitter(r.Bus),
			bundlelua.WithLogger(logger),
		)))

	if err := r.registerBuiltins(cfg.Access.Grants); err != nil {
		_ = store.Close()
		return nil, err
	}

	r.Router = command.NewRouter(
		[]command.Handler{r.Commands, &AdminTools{rt: r}},
		command.WithAuthorizer(r.Bus),
		command.WithRouterLogger(logger),
	)
	return r, nil
}

func openStore(ctx context.Context, cfg config.Store) (world.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, oops.In("runtime").With("path", cfg.Path).Wrapf(err, "open sqlite store")
		}
		return store, nil
	case config.DriverMemory, "":
		return memstore.New(), nil
	default:
		return nil, oops.Code(config.CodeInvalidConfig).With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (r *Runtime) registerBuiltins(grants map[string][]string) error {
	catalog := r.Loader.Catalog()
	catalog.MustRegister(core.Bundle(core.Deps{
		Store:     r.Store,
		Effects:   r.Effects,
		Catalog:   r.Catalog,
		Behaviors: r.Behaviors,
		Bus:       r.Bus,
		Templates: r.Loader.EntityTemplate,
		Logger:    r.logger,
	}))
	catalog.MustRegister(survival.Bundle(survival.Deps{
		Store:     r.Store,
		Effects:   r.Effects,
		Catalog:   r.Catalog,
		Bus:       r.Bus,
		Templates: r.Loader.EntityTemplate,
		Logger:    r.logger,
	}))

	src, enforcer, err := access.Bundle(access.Deps{Grants: grants, Logger: r.logger})
	if err != nil {
		return err
	}
	r.Access = enforcer
	return catalog.Register(src)
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Resolve maps a configured bundle name to what Loader.LoadPath accepts: a
// static bundle name, or a directory under the bundles dir.
func (r *Runtime) Resolve(name string) string {
	if _, ok := r.Loader.Catalog().Lookup(name); ok {
		return name
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, os.PathSeparator) || r.cfg.Bundles.Dir == "" {
		return name
	}
	return filepath.Join(r.cfg.Bundles.Dir, name)
}

// Boot loads the configured bundles in order. It stops at the first failure;
// bundles loaded before it stay loaded.
func (r *Runtime) Boot(ctx context.Context) error {
	for _, name := range r.cfg.Bundles.Order {
		if _, err := r.Loader.LoadPath(ctx, r.Resolve(name)); err != nil {
			return err
		}
	}
	r.booted.Store(true)
	r.logger.InfoContext(ctx, "runtime booted", "bundles", strings.Join(r.Loader.Order(), ","))
	return nil
}

// Ready reports whether Boot completed.
func (r *Runtime) Ready() bool { return r.booted.Load() }

// Call routes a tool call and always returns an envelope.
func (r *Runtime) Call(ctx context.Context, tool string, args command.Args, cc command.CallContext) command.Result {
	return r.Router.RouteToolCall(ctx, tool, args, cc)
}

// Run drives the effect scheduler until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	return r.Scheduler.Run(ctx)
}

// Close releases the store.
func (r *Runtime) Close() error {
	return r.Store.Close()
}
