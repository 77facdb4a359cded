// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bundle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/eventbus"
)

const coreManifest = `
name: core
version: 1.2.0
commands: [commands/look, commands/say]
behaviors:
  item: [behaviors/glow]
entities: [entities/lamp]
events: [events/tick]
`

func echoCommand(name string) command.Command {
	return command.Command{
		Name:        name,
		Description: "echo " + name,
		Execute: func(context.Context, command.Args) (command.Result, error) {
			return command.Success(map[string]any{"command": name}), nil
		},
	}
}

func glowBehavior(result string) behavior.Definition {
	return behavior.Definition{
		Name: "glow",
		Execute: func(context.Context, behavior.Entity, ...any) (any, error) {
			return result, nil
		},
	}
}

func noopListener(context.Context, eventbus.Event) (any, error) { return nil, nil }

type fixture struct {
	ctx       context.Context
	bus       *eventbus.Bus
	behaviors *behavior.Registry
	commands  *command.Registry
	clock     *clockwork.FakeClock
	loader    *bundle.Loader
	published []string
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		ctx:       context.Background(),
		bus:       eventbus.New(eventbus.WithLogger(logger)),
		behaviors: behavior.NewRegistry(behavior.WithLogger(logger)),
		commands:  command.NewRegistry(command.WithRegistryLogger(logger)),
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.loader = bundle.NewLoader(f.bus, f.behaviors, f.commands,
		bundle.WithClock(f.clock),
		bundle.WithLogger(logger))
	f.bus.On(eventbus.EventBundleLoaded, func(_ context.Context, ev eventbus.Event) (any, error) {
		f.published = append(f.published, "loaded:"+ev.Payload.(eventbus.BundleLoaded).Name)
		return nil, nil
	})
	f.bus.On(eventbus.EventBundleUnloaded, func(_ context.Context, ev eventbus.Event) (any, error) {
		f.published = append(f.published, "unloaded:"+ev.Payload.(eventbus.BundleUnloaded).Name)
		return nil, nil
	})
	return f
}

// coreBundle returns a bundle whose event module records what was already
// registered when it ran.
func coreBundle(seen *[]string) bundle.Static {
	return bundle.Static{
		Manifest: []byte(coreManifest),
		Modules: map[string]any{
			"commands/look":  echoCommand("look"),
			"commands/say":   ptr(echoCommand("say")),
			"behaviors/glow": glowBehavior("core glow"),
			"entities/lamp":  bundle.EntityTemplate{Name: "lamp", Type: "item", Behaviors: []string{"glow"}},
			"events/tick": bundle.EventFunc(func(_ context.Context, sub eventbus.Subscriber) error {
				if seen != nil {
					*seen = append(*seen, "init")
				}
				sub.On("tick", noopListener, eventbus.WithPriority(5))
				sub.On("tick", noopListener)
				sub.On(eventbus.Wildcard, noopListener)
				return nil
			}),
		},
	}
}

func ptr[T any](v T) *T { return &v }

var _ = Describe("Loader", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture()
	})

	Describe("Load", func() {
		It("registers entities, behaviors, commands and listeners", func() {
			var seen []string
			registeredBeforeInit := false
			src := coreBundle(nil)
			src.Modules["events/tick"] = bundle.EventFunc(func(_ context.Context, sub eventbus.Subscriber) error {
				_, hasBehavior := f.behaviors.Get("item", "glow")
				registeredBeforeInit = f.commands.Has("look") && f.commands.Has("say") && hasBehavior
				seen = append(seen, "init")
				sub.On("tick", noopListener)
				return nil
			})

			lb, err := f.loader.Load(f.ctx, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{"init"}))
			Expect(registeredBeforeInit).To(BeTrue())

			Expect(lb.Manifest.Name).To(Equal("core"))
			Expect(lb.Version).To(Equal("1.2.0"))
			Expect(lb.LoadedAt).To(Equal(f.clock.Now()))
			Expect(lb.Location).To(Equal("static"))
			Expect(lb.Commands).To(HaveKey("look"))
			Expect(lb.Behaviors["item"]).To(HaveKey("glow"))
			Expect(lb.Entities).To(HaveKey("lamp"))
			Expect(lb.Listeners()).To(HaveLen(1))

			cmd, ok := f.commands.Get("say")
			Expect(ok).To(BeTrue())
			Expect(cmd.Source).To(Equal("core"))

			def, ok := f.behaviors.Get("item", "glow")
			Expect(ok).To(BeTrue())
			Expect(def.Source).To(Equal("core"))

			tmpl, ok := f.loader.EntityTemplate("lamp")
			Expect(ok).To(BeTrue())
			Expect(tmpl.Source).To(Equal("core"))
			Expect(tmpl.Behaviors).To(Equal([]string{"glow"}))

			Expect(f.published).To(Equal([]string{"loaded:core"}))
			Expect(f.loader.Order()).To(Equal([]string{"core"}))
		})

		It("rejects a second load of the same bundle", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.loader.Load(f.ctx, coreBundle(nil))
			expectCode(err, bundle.CodeAlreadyLoaded)
			Expect(f.bus.ListenerCount("tick")).To(Equal(2))
		})

		It("rejects manifests that fail schema validation", func() {
			_, err := f.loader.Load(f.ctx, bundle.Static{Manifest: []byte("version: 1.0.0")})
			expectCode(err, bundle.CodeValidation)
			Expect(f.loader.Order()).To(BeEmpty())
		})

		It("fails with a dependency error and registers nothing when a dependency is missing", func() {
			src := bundle.Static{
				Manifest: []byte("name: survival\nversion: 1.0.0\ndependencies: [core]\ncommands: [spawn]\nevents: [ev]"),
				Modules: map[string]any{
					"spawn": echoCommand("item.spawn"),
					"ev": bundle.EventFunc(func(_ context.Context, sub eventbus.Subscriber) error {
						sub.On("tick", noopListener)
						return nil
					}),
				},
			}
			before := f.bus.ListenerCount("tick")

			_, err := f.loader.Load(f.ctx, src)
			expectCode(err, bundle.CodeDependency)
			Expect(err.Error()).To(ContainSubstring(`depends on "core"`))
			Expect(f.commands.All()).To(BeEmpty())
			Expect(f.bus.ListenerCount("tick")).To(Equal(before))
			Expect(f.loader.Has("survival")).To(BeFalse())
		})

		It("checks dependency version constraints", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.loader.Load(f.ctx, bundle.Static{Manifest: []byte("name: modern\nversion: 1.0.0\ndependencies: [core@^2]")})
			expectCode(err, bundle.CodeDependency)

			_, err = f.loader.Load(f.ctx, bundle.Static{Manifest: []byte("name: compatible\nversion: 1.0.0\ndependencies: [core@~1.2]")})
			Expect(err).NotTo(HaveOccurred())
		})

		It("aborts with a load error naming the file for a malformed command", func() {
			src := coreBundle(nil)
			src.Modules["commands/say"] = command.Command{Name: "say"}

			_, err := f.loader.Load(f.ctx, src)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("commands/say"))
			Expect(err.Error()).To(ContainSubstring("no execute function"))
			Expect(f.commands.All()).To(BeEmpty())
			Expect(f.behaviors.GetByType("item")).To(BeEmpty())
		})

		It("aborts with a load error for a module of the wrong kind", func() {
			src := coreBundle(nil)
			src.Modules["behaviors/glow"] = echoCommand("glow")

			_, err := f.loader.Load(f.ctx, src)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("expected a behavior definition"))
		})

		It("aborts with a load error for an unresolvable path", func() {
			src := coreBundle(nil)
			delete(src.Modules, "entities/lamp")

			_, err := f.loader.Load(f.ctx, src)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("entities/lamp"))
		})

		It("rolls back everything when an event module init fails", func() {
			f.bus.On("tick", noopListener)
			src := coreBundle(nil)
			src.Manifest = []byte(strings.Replace(coreManifest, "[events/tick]", "[events/tick, events/broken]", 1))
			src.Modules["events/broken"] = bundle.EventFunc(func(context.Context, eventbus.Subscriber) error {
				return errors.New("cannot subscribe")
			})

			_, err := f.loader.Load(f.ctx, src)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("events/broken"))

			Expect(f.commands.Has("look")).To(BeFalse())
			Expect(f.commands.Has("say")).To(BeFalse())
			Expect(f.behaviors.GetByType("item")).To(BeEmpty())
			Expect(f.bus.ListenerCount("tick")).To(Equal(1))
			Expect(f.bus.ListenerCount(eventbus.Wildcard)).To(Equal(0))
			Expect(f.loader.Has("core")).To(BeFalse())
			Expect(f.published).To(BeEmpty())
		})

		It("lets an event module init query the loader", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())

			var sawCore, sawSelf, sawLamp bool
			src := bundle.Static{
				Manifest: []byte("name: survival\nversion: 1.0.0\ndependencies: [core]\nevents: [ev]"),
				Modules: map[string]any{
					"ev": bundle.EventFunc(func(_ context.Context, sub eventbus.Subscriber) error {
						sawCore = f.loader.Has("core")
						sawSelf = f.loader.Has("survival")
						_, sawLamp = f.loader.EntityTemplate("lamp")
						sub.On("tick", noopListener)
						return nil
					}),
				},
			}

			done := make(chan error, 1)
			go func() {
				_, err := f.loader.Load(f.ctx, src)
				done <- err
			}()
			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
			Expect(sawCore).To(BeTrue())
			Expect(sawSelf).To(BeFalse())
			Expect(sawLamp).To(BeTrue())
			Expect(f.loader.Order()).To(Equal([]string{"core", "survival"}))
		})
	})

	Describe("Unload", func() {
		It("removes exactly the listeners the bundle added", func() {
			f.bus.On("tick", noopListener)
			before := f.bus.ListenerCount("tick")
			beforeWildcard := f.bus.ListenerCount(eventbus.Wildcard)

			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(f.bus.ListenerCount("tick")).To(Equal(before + 2))

			Expect(f.loader.Unload(f.ctx, "core")).To(Succeed())
			Expect(f.bus.ListenerCount("tick")).To(Equal(before))
			Expect(f.bus.ListenerCount(eventbus.Wildcard)).To(Equal(beforeWildcard))
			Expect(f.commands.All()).To(BeEmpty())
			Expect(f.behaviors.GetByType("item")).To(BeEmpty())
			_, ok := f.loader.EntityTemplate("lamp")
			Expect(ok).To(BeFalse())
			Expect(f.loader.Order()).To(BeEmpty())
			Expect(f.published).To(Equal([]string{"loaded:core", "unloaded:core"}))
		})

		It("fails while another bundle depends on it", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.loader.Load(f.ctx, bundle.Static{Manifest: []byte("name: survival\nversion: 1.0.0\ndependencies: [core@^1]")})
			Expect(err).NotTo(HaveOccurred())

			err = f.loader.Unload(f.ctx, "core")
			expectCode(err, bundle.CodeDependency)
			Expect(err.Error()).To(ContainSubstring("survival"))
			Expect(f.loader.Has("core")).To(BeTrue())
			Expect(f.commands.Has("look")).To(BeTrue())

			Expect(f.loader.Unload(f.ctx, "survival")).To(Succeed())
			Expect(f.loader.Unload(f.ctx, "core")).To(Succeed())
		})

		It("reports unknown bundles", func() {
			expectCode(f.loader.Unload(f.ctx, "ghost"), bundle.CodeNotFound)
		})

		It("keeps a later bundle's override when the earlier bundle is unloaded", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.loader.Load(f.ctx, bundle.Static{
				Manifest: []byte("name: override\nversion: 1.0.0\ncommands: [look]\nbehaviors:\n  item: [glow]"),
				Modules: map[string]any{
					"look": echoCommand("look"),
					"glow": glowBehavior("override glow"),
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.loader.Unload(f.ctx, "core")).To(Succeed())

			cmd, ok := f.commands.Get("look")
			Expect(ok).To(BeTrue())
			Expect(cmd.Source).To(Equal("override"))
			Expect(f.commands.Has("say")).To(BeFalse())
			def, ok := f.behaviors.Get("item", "glow")
			Expect(ok).To(BeTrue())
			Expect(def.Source).To(Equal("override"))
		})

		It("restores the shadowed registration when the overriding bundle is unloaded", func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.loader.Load(f.ctx, bundle.Static{
				Manifest: []byte("name: override\nversion: 1.0.0\ncommands: [look]"),
				Modules:  map[string]any{"look": echoCommand("look")},
			})
			Expect(err).NotTo(HaveOccurred())
			cmd, _ := f.commands.Get("look")
			Expect(cmd.Source).To(Equal("override"))

			Expect(f.loader.Unload(f.ctx, "override")).To(Succeed())

			cmd, ok := f.commands.Get("look")
			Expect(ok).To(BeTrue())
			Expect(cmd.Source).To(Equal("core"))
		})
	})

	Describe("queries", func() {
		BeforeEach(func() {
			_, err := f.loader.Load(f.ctx, coreBundle(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.loader.Load(f.ctx, bundle.Static{
				Manifest: []byte("name: extra\nversion: 0.1.0\ncommands: [look, wave]\nentities: [lamp]"),
				Modules: map[string]any{
					"look": echoCommand("look"),
					"wave": echoCommand("wave"),
					"lamp": &bundle.EntityTemplate{Name: "lamp", Type: "item", Description: "brighter"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists bundles in load order", func() {
			Expect(f.loader.Order()).To(Equal([]string{"core", "extra"}))
			all := f.loader.All()
			Expect(all).To(HaveLen(2))
			Expect(all[0].Manifest.Name).To(Equal("core"))
			Expect(f.loader.Has("extra")).To(BeTrue())
			lb, ok := f.loader.Get("extra")
			Expect(ok).To(BeTrue())
			Expect(lb.Version).To(Equal("0.1.0"))
		})

		It("aggregates commands with later bundles winning", func() {
			cmds := f.loader.AllCommands()
			names := make([]string, 0, len(cmds))
			for _, c := range cmds {
				names = append(names, c.Name)
			}
			Expect(names).To(Equal([]string{"look", "say", "wave"}))
			Expect(cmds[0].Source).To(Equal("extra"))

			cmd, ok := f.loader.Command("say")
			Expect(ok).To(BeTrue())
			Expect(cmd.Source).To(Equal("core"))
			_, ok = f.loader.Command("fly")
			Expect(ok).To(BeFalse())
		})

		It("resolves entity templates from the latest bundle", func() {
			tmpl, ok := f.loader.EntityTemplate("lamp")
			Expect(ok).To(BeTrue())
			Expect(tmpl.Description).To(Equal("brighter"))
			Expect(tmpl.Source).To(Equal("extra"))
		})
	})

	Describe("LoadPath and LoadAll", func() {
		It("resolves static bundles from the catalog", func() {
			Expect(f.loader.Catalog().Register(coreBundle(nil))).To(Succeed())
			lb, err := f.loader.LoadPath(f.ctx, "core")
			Expect(err).NotTo(HaveOccurred())
			Expect(lb.Manifest.Name).To(Equal("core"))
		})

		It("reports unknown names", func() {
			_, err := f.loader.LoadPath(f.ctx, "nowhere")
			expectCode(err, bundle.CodeNotFound)
		})

		It("stops at the first failure in declared order", func() {
			catalog := f.loader.Catalog()
			catalog.MustRegister(coreBundle(nil))
			catalog.MustRegister(bundle.Static{Manifest: []byte("name: needs-access\nversion: 1.0.0\ndependencies: [access]")})
			catalog.MustRegister(bundle.Static{Manifest: []byte("name: later\nversion: 1.0.0")})

			err := f.loader.LoadAll(f.ctx, []string{"core", "needs-access", "later"})
			expectCode(err, bundle.CodeDependency)
			Expect(f.loader.Order()).To(Equal([]string{"core"}))
		})

		It("loads a Lua bundle directory", func() {
			dir := GinkgoT().TempDir()
			write := func(rel, content string) {
				p := filepath.Join(dir, rel)
				Expect(os.MkdirAll(filepath.Dir(p), 0o750)).To(Succeed())
				Expect(os.WriteFile(p, []byte(content), 0o600)).To(Succeed())
			}
			write("bundle.yaml", `
name: weather
version: 0.3.0
commands: [commands/forecast.lua]
behaviors:
  item: [behaviors/barometer.lua]
entities: [entities/barometer.yaml]
events: [events/storm.lua]
`)
			write("commands/forecast.lua", `return {
  name = "weather.forecast",
  description = "Tell the forecast",
  execute = function(args) return { forecast = "rain in " .. (args.where or "town") } end,
}`)
			write("behaviors/barometer.lua", `return {
  name = "read-pressure",
  execute = function(entity) return { pressure = 1013, item = entity.entityId } end,
}`)
			write("entities/barometer.yaml", "name: barometer\ntype: item\nbehaviors: [read-pressure]\n")
			write("events/storm.lua", `return { init = function(bus)
  bus.on("weather.storm", function(ev) return "batten down" end)
end }`)

			lb, err := f.loader.LoadPath(f.ctx, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(lb.Location).To(Equal(dir))

			result, err := f.commands.Execute(f.ctx, "weather.forecast", command.Args{"where": "Harbor"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload).To(HaveKeyWithValue("forecast", "rain in Harbor"))

			_, ok := f.behaviors.Get("item", "read-pressure")
			Expect(ok).To(BeTrue())
			tmpl, ok := f.loader.EntityTemplate("barometer")
			Expect(ok).To(BeTrue())
			Expect(tmpl.Type).To(Equal("item"))

			Expect(f.bus.EmitWithResults(f.ctx, "weather.storm", nil)).To(Equal([]any{"batten down"}))
			Expect(f.loader.Unload(f.ctx, "weather")).To(Succeed())
			Expect(f.bus.ListenerCount("weather.storm")).To(Equal(0))
		})

		It("refuses module paths outside the bundle directory", func() {
			dir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "bundle.yaml"),
				[]byte("name: sneaky\nversion: 1.0.0\ncommands: [../outside.lua]\n"), 0o600)).To(Succeed())

			_, err := f.loader.LoadPath(f.ctx, dir)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("escapes the bundle directory"))
		})

		It("reports Lua syntax errors as load errors", func() {
			dir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "bundle.yaml"),
				[]byte("name: broken\nversion: 1.0.0\ncommands: [bad.lua]\n"), 0o600)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("return {"), 0o600)).To(Succeed())

			_, err := f.loader.LoadPath(f.ctx, dir)
			expectCode(err, bundle.CodeLoad)
			Expect(err.Error()).To(ContainSubstring("bad.lua"))
		})
	})
})

var _ = Describe("Check", func() {
	ctx := context.Background()

	It("resolves modules without registering them or checking dependencies", func() {
		m, err := bundle.Check(ctx, bundle.Static{
			Manifest: []byte("name: addon\nversion: 1.0.0\ndependencies: [core]\ncommands: [commands/wave]\n"),
			Modules:  map[string]any{"commands/wave": echoCommand("wave")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Name).To(Equal("addon"))
		Expect(m.Dependencies).To(Equal([]string{"core"}))
	})

	It("reports unresolvable modules", func() {
		_, err := bundle.Check(ctx, bundle.Static{
			Manifest: []byte("name: addon\nversion: 1.0.0\ncommands: [commands/wave]\n"),
		})
		expectCode(err, bundle.CodeLoad)
	})

	It("reports invalid manifests", func() {
		_, err := bundle.Check(ctx, bundle.Static{Manifest: []byte("name: addon\n")})
		expectCode(err, bundle.CodeValidation)
	})

	It("accepts the shipped example bundle", func() {
		m, err := bundle.Check(ctx, bundle.Dir{Path: filepath.Join("..", "..", "bundles", "campfire")})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Commands).To(ConsistOf("commands/story.lua"))
	})
})
