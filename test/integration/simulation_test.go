// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/simcore/internal/command"
)

var _ = Describe("Simulation", func() {
	var (
		env    *testEnv
		charID string
	)

	BeforeEach(func() {
		env = newTestEnv(filepath.Join(GinkgoT().TempDir(), "world.db"))
		charID = env.createCharacter("Mara")
	})

	AfterEach(func() {
		env.close()
	})

	Describe("poison and its cures", func() {
		It("stops losing health once an antidote is used", func() {
			env.call("effect.apply", command.Args{"characterId": charID, "effect": "poison"})

			env.advance(5 * time.Second)
			Expect(env.character(charID).Health).To(Equal(90))

			antidote := env.spawn("antidote", charID)
			used := env.call("item.use", command.Args{"characterId": charID, "itemId": antidote})
			Expect(used.Payload["consumed"]).To(BeTrue())
			Expect(env.rt.Effects.Get(charID).Has("poison")).To(BeFalse())

			env.advance(5 * time.Second)
			Expect(env.character(charID).Health).To(Equal(90))
			Expect(env.memories(charID)).To(ContainElements("Came under poison.", "poison was cured."))

			item, err := env.rt.Store.GetItemByID(env.ctx, antidote)
			Expect(err).NotTo(HaveOccurred())
			Expect(item).To(BeNil())
		})

		It("heals with a potion up to full health", func() {
			env.call("effect.apply", command.Args{"characterId": charID, "effect": "poison"})
			env.advance(10 * time.Second)
			Expect(env.character(charID).Health).To(Equal(80))
			Expect(env.memories(charID)).To(ContainElement("poison wore off."))

			potion := env.spawn("health-potion", charID)
			used := env.call("item.use", command.Args{"characterId": charID, "itemId": potion})
			Expect(used.Payload["result"]).To(HaveKeyWithValue("health", 100))
			Expect(used.Payload["result"]).To(HaveKeyWithValue("healed", 20))
		})

		It("panics when strong poison drops health into the danger zone", func() {
			env.call("effect.apply", command.Args{"characterId": charID, "effect": "poison", "power": 20})

			env.advance(3 * time.Second)
			Expect(env.character(charID).Health).To(Equal(40))
			Expect(env.rt.Effects.Get(charID).Has("panic")).To(BeFalse())

			env.advance(time.Second)
			Expect(env.character(charID).Health).To(Equal(20))
			Expect(env.rt.Effects.Get(charID).Has("panic")).To(BeTrue())
		})
	})

	Describe("persistence", func() {
		It("keeps characters and memories across restarts", func() {
			env.call("effect.apply", command.Args{"characterId": charID, "effect": "poison"})
			env.advance(2 * time.Second)
			env.close()

			env = newTestEnv(env.dbPath)
			Expect(env.character(charID).Health).To(Equal(96))
			Expect(env.memories(charID)).To(ContainElement("Came under poison."))
			// Effects are in-memory only.
			Expect(env.rt.Effects.Get(charID).Len()).To(BeZero())
		})
	})

	Describe("hot-loaded bundles", func() {
		It("adds and removes Lua commands at runtime", func() {
			Expect(env.rt.Router.Tools()).NotTo(ContainElement(HaveField("Name", "campfire.story")))

			env.call("bundles.load", command.Args{"name": "campfire"})
			story := env.call("campfire.story", command.Args{"index": 1})
			Expect(story.Payload["story"]).To(BeAssignableToTypeOf(""))

			env.call("bundles.unload", command.Args{"name": "campfire"})
			res := env.rt.Call(env.ctx, "campfire.story", nil, command.CallContext{CallerID: "admin"})
			Expect(res.Error).To(Equal("Unknown tool: campfire.story"))
		})

		It("refuses to unload a bundle others depend on", func() {
			env.call("bundles.load", command.Args{"name": "campfire"})
			res := env.rt.Call(env.ctx, "bundles.unload", command.Args{"name": "core"},
				command.CallContext{CallerID: "admin"})
			Expect(res.Success).To(BeFalse())
			Expect(env.rt.Loader.Has("core")).To(BeTrue())
		})
	})

	Describe("concurrent callers", func() {
		const goroutines = 50

		It("applies effects from many callers without losing any", func() {
			ids := make([]string, goroutines)
			for i := range ids {
				ids[i] = env.createCharacter(fmt.Sprintf("Walker%d", i))
			}

			var wg sync.WaitGroup
			results := make([]command.Result, goroutines)
			for i := range goroutines {
				wg.Add(1)
				go func(idx int) {
					defer GinkgoRecover()
					defer wg.Done()
					results[idx] = env.rt.Call(env.ctx, "effect.apply",
						command.Args{"characterId": ids[idx], "effect": "regeneration"},
						command.CallContext{CallerID: "admin"})
				}(i)
			}
			wg.Wait()

			for i, res := range results {
				Expect(res.Success).To(BeTrue(), "goroutine %d: %s", i, res.Error)
			}
			Expect(env.rt.Effects.ActiveCount()).To(Equal(goroutines))
		})

		It("denies callers without grants consistently", func() {
			var wg sync.WaitGroup
			errs := make([]string, goroutines)
			for i := range goroutines {
				wg.Add(1)
				go func(idx int) {
					defer GinkgoRecover()
					defer wg.Done()
					res := env.rt.Call(env.ctx, "character.create", command.Args{"name": "Intruder"},
						command.CallContext{CallerID: fmt.Sprintf("guest-%d", idx)})
					errs[idx] = res.Error
				}(i)
			}
			wg.Wait()

			for _, msg := range errs {
				Expect(msg).To(Equal("Permission denied: missing capability characters.create"))
			}
		})
	})
})
