// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package runtime

import (
	"context"
	"sort"
	"time"

	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/effect"
)

// AdminCapability guards the bundle management tools.
const AdminCapability = "admin.bundles"

const adminSource = "admin"

// AdminTools exposes bundle and effect administration as tools.
type AdminTools struct {
	rt *Runtime
}

var adminTools = []command.Tool{
	{Name: "bundles.list", Description: "List loaded bundles in load order.", Usage: "bundles.list", Source: adminSource},
	{Name: "bundles.load", Description: "Load a bundle by name or directory.", Usage: "bundles.load {name}", Capability: AdminCapability, Source: adminSource},
	{Name: "bundles.unload", Description: "Unload a bundle.", Usage: "bundles.unload {name}", Capability: AdminCapability, Source: adminSource},
	{Name: "effects.list", Description: "List active effects for every character, or one.", Usage: "effects.list {characterId?}", Source: adminSource},
}

// Tools implements command.Handler.
func (a *AdminTools) Tools() []command.Tool {
	return append([]command.Tool(nil), adminTools...)
}

// Handle implements command.Handler.
func (a *AdminTools) Handle(ctx context.Context, name string, args command.Args) (command.Result, error) {
	switch name {
	case "bundles.list":
		return a.listBundles(), nil
	case "bundles.load":
		return a.loadBundle(ctx, args)
	case "bundles.unload":
		return a.unloadBundle(ctx, args)
	case "effects.list":
		return a.listEffects(args), nil
	default:
		return command.Result{}, command.ErrNotFound(name)
	}
}

// BundleInfo is the listing form of a loaded bundle.
type BundleInfo struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Commands     []string  `json:"commands"`
	Listeners    int       `json:"listeners"`
	LoadedAt     time.Time `json:"loadedAt"`
}

func (a *AdminTools) listBundles() command.Result {
	loaded := a.rt.Loader.All()
	infos := make([]BundleInfo, 0, len(loaded))
	for _, lb := range loaded {
		cmds := make([]string, 0, len(lb.Commands))
		for name := range lb.Commands {
			cmds = append(cmds, name)
		}
		sort.Strings(cmds)
		infos = append(infos, BundleInfo{
			Name:         lb.Manifest.Name,
			Version:      lb.Manifest.Version,
			Description:  lb.Manifest.Description,
			Location:     lb.Location,
			Dependencies: lb.Manifest.Dependencies,
			Commands:     cmds,
			Listeners:    len(lb.Listeners()),
			LoadedAt:     lb.LoadedAt,
		})
	}
	return command.Success(map[string]any{"bundles": infos})
}

func (a *AdminTools) loadBundle(ctx context.Context, args command.Args) (command.Result, error) {
	name, ok := args.String("name")
	if !ok {
		return command.Result{}, command.ErrInvalidArgs("bundles.load", "bundles.load {name}")
	}
	lb, err := a.rt.Loader.LoadPath(ctx, a.rt.Resolve(name))
	if err != nil {
		return command.FailureFrom(err), nil
	}
	return command.Success(map[string]any{"bundle": lb.Manifest.Name, "version": lb.Manifest.Version}), nil
}

func (a *AdminTools) unloadBundle(ctx context.Context, args command.Args) (command.Result, error) {
	name, ok := args.String("name")
	if !ok {
		return command.Result{}, command.ErrInvalidArgs("bundles.unload", "bundles.unload {name}")
	}
	if err := a.rt.Loader.Unload(ctx, name); err != nil {
		return command.FailureFrom(err), nil
	}
	return command.Success(map[string]any{"bundle": name}), nil
}

func (a *AdminTools) listEffects(args command.Args) command.Result {
	if id, ok := args.String("characterId"); ok {
		snaps := []effect.Snapshot{}
		if list, ok := a.rt.Effects.Lookup(id); ok {
			snaps = list.Snapshot()
		}
		return command.Success(map[string]any{"effects": map[string][]effect.Snapshot{id: snaps}})
	}

	all := make(map[string][]effect.Snapshot)
	for _, id := range a.rt.Effects.Characters() {
		if list, ok := a.rt.Effects.Lookup(id); ok && list.Len() > 0 {
			all[id] = list.Snapshot()
		}
	}
	return command.Success(map[string]any{"effects": all, "active": a.rt.Effects.ActiveCount()})
}
