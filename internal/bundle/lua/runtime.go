// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Emitter publishes events raised from Lua with simcore.emit.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any)
}

// Runtime compiles Lua modules. Every call into a module runs in a fresh
// sandboxed state built from the compiled chunk, so modules keep no state
// between calls.
type Runtime struct {
	factory *StateFactory
	emitter Emitter
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithEmitter enables simcore.emit.
func WithEmitter(e Emitter) Option {
	return func(r *Runtime) { r.emitter = e }
}

// WithLogger sets the logger behind simcore.log.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		factory: NewStateFactory(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Chunk is the source of one Lua module.
type Chunk struct {
	Bundle string
	Path   string
	Code   string
}

// module is a compiled chunk. Running it must return a table.
type module struct {
	rt     *Runtime
	bundle string
	path   string
	proto  *lua.FunctionProto
}

func (r *Runtime) compile(c Chunk) (*module, error) {
	tree, err := parse.Parse(strings.NewReader(c.Code), c.Path)
	if err != nil {
		return nil, oops.In("lua").With("bundle", c.Bundle).With("file", c.Path).Hint("syntax error").Wrap(err)
	}
	proto, err := lua.Compile(tree, c.Path)
	if err != nil {
		return nil, oops.In("lua").With("bundle", c.Bundle).With("file", c.Path).Hint("compile error").Wrap(err)
	}
	return &module{rt: r, bundle: c.Bundle, path: c.Path, proto: proto}, nil
}

func (m *module) errorf(format string, args ...any) error {
	return oops.In("lua").With("bundle", m.bundle).With("file", m.path).Errorf(format, args...)
}

// open runs the chunk in a fresh state and returns the table it produced.
// The caller closes the state.
func (m *module) open(ctx context.Context) (*lua.LState, *lua.LTable, error) {
	L, err := m.rt.factory.NewState(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.rt.registerHost(L, m.bundle)

	L.Push(L.NewFunctionFromProto(m.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, nil, oops.In("lua").With("bundle", m.bundle).With("file", m.path).Hint("module failed to run").Wrap(err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, nil, m.errorf("module must return a table, got %s", ret.Type().String())
	}
	return L, tbl, nil
}

func (m *module) call(L *lua.LState, fn lua.LValue, args ...lua.LValue) (lua.LValue, error) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, oops.In("lua").With("bundle", m.bundle).With("file", m.path).Wrap(err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func stringField(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func functionField(t *lua.LTable, key string) (*lua.LFunction, bool) {
	fn, ok := t.RawGetString(key).(*lua.LFunction)
	return fn, ok
}

func (r *Runtime) registerHost(L *lua.LState, bundle string) {
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(r.logFn(bundle)))
	L.SetField(mod, "new_id", L.NewFunction(newIDFn))
	L.SetField(mod, "emit", L.NewFunction(r.emitFn()))
	L.SetGlobal("simcore", mod)
}

func (r *Runtime) logFn(bundle string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := r.logger.With("bundle", bundle)
		switch level {
		case "debug":
			logger.Debug(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return 0
	}
}

func newIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func (r *Runtime) emitFn() lua.LGFunction {
	return func(L *lua.LState) int {
		event := L.CheckString(1)
		if r.emitter == nil {
			L.RaiseError("simcore.emit is not available")
			return 0
		}
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		r.emitter.Emit(ctx, event, FromLua(L.Get(2)))
		return 0
	}
}
