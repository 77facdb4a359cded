// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/eventbus"
)

// Command compiles a command module:
//
//	return {
//	  name = "greet",
//	  description = "...",
//	  usage = "...",
//	  capability = "...",
//	  execute = function(args, caller) return { success = true } end,
//	}
func (r *Runtime) Command(ctx context.Context, c Chunk) (command.Command, error) {
	m, err := r.compile(c)
	if err != nil {
		return command.Command{}, err
	}
	L, tbl, err := m.open(ctx)
	if err != nil {
		return command.Command{}, err
	}
	defer L.Close()

	cmd := command.Command{
		Name:        stringField(tbl, "name"),
		Description: stringField(tbl, "description"),
		Usage:       stringField(tbl, "usage"),
		Capability:  stringField(tbl, "capability"),
		Source:      c.Bundle,
	}
	if cmd.Name == "" {
		return command.Command{}, m.errorf("command module has no name")
	}
	if _, ok := functionField(tbl, "execute"); !ok {
		return command.Command{}, m.errorf("command %q has no execute function", cmd.Name)
	}

	cmd.Execute = func(ctx context.Context, args command.Args) (command.Result, error) {
		L, tbl, err := m.open(ctx)
		if err != nil {
			return command.Result{}, err
		}
		defer L.Close()

		fn, _ := functionField(tbl, "execute")
		caller := L.NewTable()
		if cc, ok := command.CallContextFrom(ctx); ok {
			caller.RawSetString("id", lua.LString(cc.CallerID))
			caller.RawSetString("capabilities", ToLua(L, cc.Capabilities))
		}
		ret, err := m.call(L, fn, ToLua(L, map[string]any(args)), caller)
		if err != nil {
			return command.Result{}, err
		}
		return resultFrom(ret), nil
	}
	return cmd, nil
}

// resultFrom reads a returned table as an envelope. A missing success field
// means success unless an error is set.
func resultFrom(ret lua.LValue) command.Result {
	payload, ok := FromLuaMap(ret)
	if !ok {
		return command.Success(map[string]any{"result": FromLua(ret)})
	}
	errText, _ := payload["error"].(string)
	success, hasSuccess := payload["success"].(bool)
	if !hasSuccess {
		success = errText == ""
	}
	delete(payload, "success")
	delete(payload, "error")
	if len(payload) == 0 {
		payload = nil
	}
	return command.Result{Success: success, Error: errText, Payload: payload}
}

// Behavior compiles a behavior module:
//
//	return {
//	  name = "glow",
//	  description = "...",
//	  execute = function(entity, ...) return { light = 3 } end,
//	}
//
// The entity table carries the entity's JSON fields plus entityType and entityId.
func (r *Runtime) Behavior(ctx context.Context, c Chunk) (behavior.Definition, error) {
	m, err := r.compile(c)
	if err != nil {
		return behavior.Definition{}, err
	}
	L, tbl, err := m.open(ctx)
	if err != nil {
		return behavior.Definition{}, err
	}
	defer L.Close()

	def := behavior.Definition{
		Name:        stringField(tbl, "name"),
		Description: stringField(tbl, "description"),
		Source:      c.Bundle,
	}
	if def.Name == "" {
		return behavior.Definition{}, m.errorf("behavior module has no name")
	}
	if _, ok := functionField(tbl, "execute"); !ok {
		return behavior.Definition{}, m.errorf("behavior %q has no execute function", def.Name)
	}

	def.Execute = func(ctx context.Context, entity behavior.Entity, args ...any) (any, error) {
		L, tbl, err := m.open(ctx)
		if err != nil {
			return nil, err
		}
		defer L.Close()

		fn, _ := functionField(tbl, "execute")
		callArgs := make([]lua.LValue, 0, len(args)+1)
		callArgs = append(callArgs, entityTable(L, entity))
		for _, a := range args {
			callArgs = append(callArgs, ToLua(L, a))
		}
		ret, err := m.call(L, fn, callArgs...)
		if err != nil {
			return nil, err
		}
		return FromLua(ret), nil
	}
	return def, nil
}

func entityTable(L *lua.LState, entity behavior.Entity) *lua.LTable {
	t, ok := ToLua(L, entity).(*lua.LTable)
	if !ok {
		t = L.NewTable()
	}
	t.RawSetString("entityType", lua.LString(entity.EntityType()))
	t.RawSetString("entityId", lua.LString(entity.EntityID()))
	return t
}

// Events is a compiled event module:
//
//	return {
//	  init = function(bus)
//	    bus.on("effect.applied", function(ev) ... end, 5)
//	    bus.once("bundle.loaded", function(ev) ... end)
//	  end,
//	}
//
// init must subscribe the same listeners in the same order every time it
// runs: each delivery re-runs it in a fresh state to find the listener.
type Events struct {
	m *module
}

type registration struct {
	event    string
	priority int
	once     bool
	fn       *lua.LFunction
}

// Events compiles an event module.
func (r *Runtime) Events(ctx context.Context, c Chunk) (*Events, error) {
	m, err := r.compile(c)
	if err != nil {
		return nil, err
	}
	L, tbl, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	if _, ok := functionField(tbl, "init"); !ok {
		return nil, m.errorf("event module has no init function")
	}
	return &Events{m: m}, nil
}

// collect runs init against a recording bus table.
func (e *Events) collect(L *lua.LState, tbl *lua.LTable) ([]registration, error) {
	var regs []registration
	record := func(once bool) lua.LGFunction {
		return func(L *lua.LState) int {
			regs = append(regs, registration{
				event:    L.CheckString(1),
				fn:       L.CheckFunction(2),
				priority: L.OptInt(3, 0),
				once:     once,
			})
			return 0
		}
	}
	bus := L.NewTable()
	L.SetField(bus, "on", L.NewFunction(record(false)))
	L.SetField(bus, "once", L.NewFunction(record(true)))

	fn, _ := functionField(tbl, "init")
	if _, err := e.m.call(L, fn, bus); err != nil {
		return nil, err
	}
	return regs, nil
}

// Init implements the bundle event module contract.
func (e *Events) Init(ctx context.Context, sub eventbus.Subscriber) error {
	L, tbl, err := e.m.open(ctx)
	if err != nil {
		return err
	}
	defer L.Close()

	regs, err := e.collect(L, tbl)
	if err != nil {
		return err
	}
	for i, reg := range regs {
		listener := e.listener(i)
		if reg.once {
			sub.Once(reg.event, listener, eventbus.WithPriority(reg.priority))
			continue
		}
		sub.On(reg.event, listener, eventbus.WithPriority(reg.priority))
	}
	return nil
}

func (e *Events) listener(index int) eventbus.Listener {
	return func(ctx context.Context, ev eventbus.Event) (any, error) {
		L, tbl, err := e.m.open(ctx)
		if err != nil {
			return nil, err
		}
		defer L.Close()

		regs, err := e.collect(L, tbl)
		if err != nil {
			return nil, err
		}
		if index >= len(regs) {
			return nil, e.m.errorf("init subscribed %d listeners, expected at least %d", len(regs), index+1)
		}

		evt := L.NewTable()
		evt.RawSetString("name", lua.LString(ev.Name))
		evt.RawSetString("payload", ToLua(L, ev.Payload))
		evt.RawSetString("emittedAt", lua.LNumber(ev.EmittedAt.UnixMilli()))

		ret, err := e.m.call(L, regs[index].fn, evt)
		if err != nil {
			return nil, err
		}
		return FromLua(ret), nil
	}
}
