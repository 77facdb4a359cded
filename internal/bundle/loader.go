// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package bundle loads self-contained bundles that register commands,
// behaviors, entity templates and event listeners, honoring declared
// dependencies and a deterministic load order.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/simcore/internal/behavior"
	bundlelua "github.com/holomush/simcore/internal/bundle/lua"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/pkg/errutil"
)

var tracer = otel.Tracer("simcore/bundle")

// Bus is the part of the event bus the loader needs.
type Bus interface {
	eventbus.Subscriber
	Publish(ctx context.Context, payload eventbus.Payload)
}

// LoadedBundle is a bundle's registrations, kept so they can be reversed.
// Callers must not modify it.
type LoadedBundle struct {
	Manifest  Manifest
	Version   string
	Commands  map[string]command.Command
	Behaviors map[string]map[string]behavior.Definition
	Entities  map[string]EntityTemplate
	LoadedAt  time.Time
	Location  string

	listeners *recorder
}

// Listeners returns the event listeners the bundle currently holds.
func (b *LoadedBundle) Listeners() []ListenerHandle {
	if b.listeners == nil {
		return nil
	}
	return b.listeners.snapshot()
}

// Loader loads and unloads bundles.
type Loader struct {
	// opMu serializes Load and Unload. mu guards loaded and order, and is
	// not held while bundle code runs, so event module Init may query the
	// loader.
	opMu      sync.Mutex
	mu        sync.RWMutex
	bus       Bus
	behaviors *behavior.Registry
	commands  *command.Registry
	catalog   *Catalog
	lua       *bundlelua.Runtime
	clock     clockwork.Clock
	logger    *slog.Logger

	loaded map[string]*LoadedBundle
	order  []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithCatalog sets the static bundles LoadPath resolves by name.
func WithCatalog(c *Catalog) Option {
	return func(l *Loader) { l.catalog = c }
}

// WithLuaRuntime sets the runtime used to compile Lua modules in bundle directories.
func WithLuaRuntime(rt *bundlelua.Runtime) Option {
	return func(l *Loader) { l.lua = rt }
}

// WithClock sets the clock used for load timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(l *Loader) { l.clock = c }
}

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader that registers into the given bus and registries.
func NewLoader(bus Bus, behaviors *behavior.Registry, commands *command.Registry, opts ...Option) *Loader {
	l := &Loader{
		bus:       bus,
		behaviors: behaviors,
		commands:  commands,
		catalog:   NewCatalog(),
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		loaded:    make(map[string]*LoadedBundle),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.lua == nil {
		l.lua = bundlelua.NewRuntime(bundlelua.WithLogger(l.logger))
	}
	return l
}

// Catalog returns the static bundle catalog.
func (l *Loader) Catalog() *Catalog { return l.catalog }

// LoadPath loads a bundle by name from the static catalog or, failing that,
// from a bundle directory at path.
func (l *Loader) LoadPath(ctx context.Context, path string) (*LoadedBundle, error) {
	if s, ok := l.catalog.Lookup(path); ok {
		return l.Load(ctx, s)
	}
	if IsBundleDir(path) {
		return l.Load(ctx, Dir{Path: path, Lua: l.lua})
	}
	return nil, oops.Code(CodeNotFound).
		In("bundle").
		With("bundle", path).
		Errorf("no static bundle or bundle directory named %q", path)
}

// LoadAll loads bundles in the declared order and stops at the first failure.
// Bundles loaded before the failure stay loaded.
func (l *Loader) LoadAll(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if _, err := l.LoadPath(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// resolved holds every module of a bundle before anything is registered.
type resolved struct {
	entities  []EntityTemplate
	behaviors map[string][]behavior.Definition
	commands  []command.Command
	events    []EventModule
}

// Load validates, resolves and registers a bundle. On any failure nothing
// from the bundle stays registered.
func (l *Loader) Load(ctx context.Context, src Source) (_ *LoadedBundle, err error) {
	ctx, span := tracer.Start(ctx, "bundle.load", trace.WithAttributes(attribute.String("bundle.location", src.Location())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	manifest, err := readManifest(src)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("bundle.name", manifest.Name))

	lb, err := l.load(ctx, src, manifest)
	if err != nil {
		errutil.LogErrorContext(ctx, l.logger, "bundle load failed", err, "bundle", manifest.Name)
		return nil, err
	}

	l.bus.Publish(ctx, eventbus.BundleLoaded{Name: manifest.Name, Version: manifest.Version})
	l.logger.InfoContext(ctx, "loaded bundle",
		"bundle", manifest.Name,
		"version", manifest.Version,
		"location", src.Location(),
		"commands", len(lb.Commands),
		"listeners", len(lb.Listeners()))
	return lb, nil
}

func readManifest(src Source) (*Manifest, error) {
	data, err := src.ManifestData()
	if err != nil {
		return nil, oops.Code(CodeValidation).In("bundle").With("location", src.Location()).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// Check validates src's manifest and resolves every module without
// registering anything. Dependencies are not checked.
func Check(ctx context.Context, src Source) (*Manifest, error) {
	m, err := readManifest(src)
	if err != nil {
		return nil, err
	}
	if _, err := resolve(ctx, src, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Loader) load(ctx context.Context, src Source, m *Manifest) (*LoadedBundle, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.RLock()
	_, already := l.loaded[m.Name]
	var depErr error
	if !already {
		depErr = l.checkDependencies(m)
	}
	l.mu.RUnlock()

	if already {
		return nil, oops.Code(CodeAlreadyLoaded).
			In("bundle").
			With("bundle", m.Name).
			Errorf("bundle %q is already loaded", m.Name)
	}
	if depErr != nil {
		return nil, depErr
	}

	res, err := resolve(ctx, src, m)
	if err != nil {
		return nil, err
	}

	lb := &LoadedBundle{
		Manifest:  *m,
		Version:   m.Version,
		Commands:  make(map[string]command.Command),
		Behaviors: make(map[string]map[string]behavior.Definition),
		Entities:  make(map[string]EntityTemplate),
		LoadedAt:  l.clock.Now(),
		Location:  src.Location(),
		listeners: &recorder{sub: l.bus},
	}

	if err := l.register(ctx, lb, res); err != nil {
		l.retract(lb)
		return nil, err
	}

	l.mu.Lock()
	l.loaded[m.Name] = lb
	l.order = append(l.order, m.Name)
	l.mu.Unlock()
	return lb, nil
}

func (l *Loader) checkDependencies(m *Manifest) error {
	deps, err := m.ParseDependencies()
	if err != nil {
		return err
	}
	for _, dep := range deps {
		lb, ok := l.loaded[dep.Name]
		if !ok {
			return ErrDependencyMissing(m.Name, dep.Name)
		}
		v, err := lb.Manifest.SemVer()
		if err != nil {
			return err
		}
		if !dep.Allows(v) {
			return oops.Code(CodeDependency).
				In("bundle").
				With("bundle", m.Name).
				With("dependency", dep.Name).
				With("required", dep.Constraint.String()).
				With("loaded", lb.Manifest.Version).
				Errorf("bundle %q requires %s, but %s is loaded", m.Name, dep, lb.Manifest.Version)
		}
	}
	return nil
}

// resolve turns every declared path into a typed module.
func resolve(ctx context.Context, src Source, m *Manifest) (*resolved, error) {
	res := &resolved{behaviors: make(map[string][]behavior.Definition)}

	for _, p := range m.Entities {
		mod, err := src.Resolve(ctx, m.Name, p, KindEntity)
		if err != nil {
			return nil, loadError(m.Name, p, err.Error())
		}
		tmpl, err := asEntity(mod)
		if err != nil {
			return nil, loadError(m.Name, p, err.Error())
		}
		res.entities = append(res.entities, tmpl)
	}

	entityTypes := make([]string, 0, len(m.Behaviors))
	for t := range m.Behaviors {
		entityTypes = append(entityTypes, t)
	}
	sort.Strings(entityTypes)
	for _, t := range entityTypes {
		for _, p := range m.Behaviors[t] {
			mod, err := src.Resolve(ctx, m.Name, p, KindBehavior)
			if err != nil {
				return nil, loadError(m.Name, p, err.Error())
			}
			def, err := asBehavior(mod)
			if err != nil {
				return nil, loadError(m.Name, p, err.Error())
			}
			def.Source = m.Name
			res.behaviors[t] = append(res.behaviors[t], def)
		}
	}

	for _, p := range m.Commands {
		mod, err := src.Resolve(ctx, m.Name, p, KindCommand)
		if err != nil {
			return nil, loadError(m.Name, p, err.Error())
		}
		cmd, err := asCommand(mod)
		if err != nil {
			return nil, loadError(m.Name, p, err.Error())
		}
		cmd.Source = m.Name
		res.commands = append(res.commands, cmd)
	}

	for _, p := range m.Events {
		mod, err := src.Resolve(ctx, m.Name, p, KindEvent)
		if err != nil {
			return nil, loadError(m.Name, p, err.Error())
		}
		ev, ok := mod.(EventModule)
		if !ok || ev == nil {
			return nil, loadError(m.Name, p, fmt.Sprintf("expected an event module, got %T", mod))
		}
		res.events = append(res.events, ev)
	}

	return res, nil
}

func asEntity(mod any) (EntityTemplate, error) {
	var tmpl EntityTemplate
	switch v := mod.(type) {
	case EntityTemplate:
		tmpl = v
	case *EntityTemplate:
		if v == nil {
			return EntityTemplate{}, fmt.Errorf("entity module is nil")
		}
		tmpl = *v
	default:
		return EntityTemplate{}, fmt.Errorf("expected an entity template, got %T", mod)
	}
	return tmpl, tmpl.Validate()
}

func asBehavior(mod any) (behavior.Definition, error) {
	var def behavior.Definition
	switch v := mod.(type) {
	case behavior.Definition:
		def = v
	case *behavior.Definition:
		if v == nil {
			return behavior.Definition{}, fmt.Errorf("behavior module is nil")
		}
		def = *v
	default:
		return behavior.Definition{}, fmt.Errorf("expected a behavior definition, got %T", mod)
	}
	return def, def.Validate()
}

func asCommand(mod any) (command.Command, error) {
	var cmd command.Command
	switch v := mod.(type) {
	case command.Command:
		cmd = v
	case *command.Command:
		if v == nil {
			return command.Command{}, fmt.Errorf("command module is nil")
		}
		cmd = *v
	default:
		return command.Command{}, fmt.Errorf("expected a command, got %T", mod)
	}
	return cmd, cmd.Validate()
}

// register applies resolved modules in order: entities, behaviors, commands,
// then event module Init. It records everything it registers in lb.
func (l *Loader) register(ctx context.Context, lb *LoadedBundle, res *resolved) error {
	name := lb.Manifest.Name

	for _, tmpl := range res.entities {
		tmpl.Source = name
		lb.Entities[tmpl.Name] = tmpl
	}

	for entityType, defs := range res.behaviors {
		for _, def := range defs {
			if err := l.behaviors.Register(entityType, def); err != nil {
				return loadError(name, def.Name, err.Error())
			}
			if lb.Behaviors[entityType] == nil {
				lb.Behaviors[entityType] = make(map[string]behavior.Definition)
			}
			lb.Behaviors[entityType][def.Name] = def
		}
	}

	for _, cmd := range res.commands {
		if err := l.commands.Register(cmd); err != nil {
			return loadError(name, cmd.Name, err.Error())
		}
		lb.Commands[cmd.Name] = cmd
	}

	for i, ev := range res.events {
		if err := ev.Init(ctx, lb.listeners); err != nil {
			return loadError(name, lb.Manifest.Events[i], "event module init failed: "+err.Error())
		}
	}
	return nil
}

// retract removes everything lb registered, then restores any command or
// behavior of an earlier bundle that lb had shadowed. Callers hold l.opMu,
// so loaded and order cannot change underneath it.
func (l *Loader) retract(lb *LoadedBundle) {
	name := lb.Manifest.Name

	for _, h := range lb.Listeners() {
		l.bus.Off(h.Event, h.ID)
	}

	for cmdName := range lb.Commands {
		if !l.commands.UnregisterOwned(cmdName, name) {
			continue
		}
		if prev, ok := l.shadowedCommand(cmdName, name); ok {
			if err := l.commands.Register(prev); err == nil {
				l.logger.Debug("restored shadowed command", "command", cmdName, "bundle", prev.Source)
			}
		}
	}

	for entityType, defs := range lb.Behaviors {
		for defName := range defs {
			if !l.behaviors.UnregisterOwned(entityType, defName, name) {
				continue
			}
			if prev, ok := l.shadowedBehavior(entityType, defName, name); ok {
				if err := l.behaviors.Register(entityType, prev); err == nil {
					l.logger.Debug("restored shadowed behavior", "entity_type", entityType, "behavior", defName, "bundle", prev.Source)
				}
			}
		}
	}
}

// shadowedCommand finds the most recently loaded other bundle providing name.
func (l *Loader) shadowedCommand(name, except string) (command.Command, bool) {
	for i := len(l.order) - 1; i >= 0; i-- {
		if l.order[i] == except {
			continue
		}
		if cmd, ok := l.loaded[l.order[i]].Commands[name]; ok {
			return cmd, true
		}
	}
	return command.Command{}, false
}

func (l *Loader) shadowedBehavior(entityType, name, except string) (behavior.Definition, bool) {
	for i := len(l.order) - 1; i >= 0; i-- {
		if l.order[i] == except {
			continue
		}
		if def, ok := l.loaded[l.order[i]].Behaviors[entityType][name]; ok {
			return def, true
		}
	}
	return behavior.Definition{}, false
}

// Unload removes a bundle's listeners, commands, behaviors and entity
// templates. It fails while another loaded bundle depends on it.
func (l *Loader) Unload(ctx context.Context, name string) error {
	if err := l.unload(name); err != nil {
		return err
	}
	l.bus.Publish(ctx, eventbus.BundleUnloaded{Name: name})
	l.logger.InfoContext(ctx, "unloaded bundle", "bundle", name)
	return nil
}

func (l *Loader) unload(name string) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	lb, ok := l.loaded[name]
	if !ok {
		return ErrNotLoaded(name)
	}

	var dependents []string
	for _, other := range l.order {
		if other != name && l.loaded[other].Manifest.DependsOn(name) {
			dependents = append(dependents, other)
		}
	}
	if len(dependents) > 0 {
		return oops.Code(CodeDependency).
			In("bundle").
			With("bundle", name).
			With("dependents", dependents).
			Errorf("bundle %q is required by %v", name, dependents)
	}

	l.retract(lb)
	delete(l.loaded, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a loaded bundle.
func (l *Loader) Get(name string) (*LoadedBundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lb, ok := l.loaded[name]
	return lb, ok
}

// Has reports whether name is loaded.
func (l *Loader) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// All returns the loaded bundles in load order.
func (l *Loader) All() []*LoadedBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	all := make([]*LoadedBundle, 0, len(l.order))
	for _, name := range l.order {
		all = append(all, l.loaded[name])
	}
	return all
}

// Order returns the load order.
func (l *Loader) Order() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.order...)
}

// AllCommands aggregates the commands of every loaded bundle, sorted by name.
// A later bundle's command replaces an earlier one of the same name.
func (l *Loader) AllCommands() []command.Command {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byName := make(map[string]command.Command)
	for _, name := range l.order {
		for cmdName, cmd := range l.loaded[name].Commands {
			byName[cmdName] = cmd
		}
	}
	cmds := make([]command.Command, 0, len(byName))
	for _, cmd := range byName {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Command returns the named command from the most recently loaded bundle providing it.
func (l *Loader) Command(name string) (command.Command, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shadowedCommand(name, "")
}

// EntityTemplate returns the named template from the most recently loaded
// bundle providing it.
func (l *Loader) EntityTemplate(name string) (EntityTemplate, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.order) - 1; i >= 0; i-- {
		if tmpl, ok := l.loaded[l.order[i]].Entities[name]; ok {
			return tmpl, true
		}
	}
	return EntityTemplate{}, false
}
