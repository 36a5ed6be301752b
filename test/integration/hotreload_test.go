// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/actor"
	pluginlua "github.com/holomush/plughost/internal/plugin/lua"
	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/internal/plugin/plugintest"
	"github.com/holomush/plughost/internal/plugin/watch"
)

// host is a registry, actor and watcher wired the way plughost run wires them.
type host struct {
	root     string
	probe    *plugintest.Probe
	registry *plugin.Registry
	actor    *actor.Actor
	cancel   context.CancelFunc
	done     chan struct{}
}

func startHost(root string, prime bool) *host {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	static := module.NewStatic()
	probe := plugintest.NewProbe()
	for _, name := range []string{"alpha", "beta", "gamma", "hot"} {
		probe.Register(static, name)
	}

	registry := plugin.NewRegistry(root,
		plugin.WithLogger(logger),
		plugin.WithOpener(plugin.RuntimeNative, static),
		plugin.WithOpener(plugin.RuntimeLua, pluginlua.NewOpener(logger)),
	)

	opts := []actor.Option{actor.WithLogger(logger), actor.WithOnStop(registry.Close)}
	if prime {
		opts = append(opts, actor.WithPrime(func(ctx context.Context) error {
			_, err := registry.LoadAll(ctx, root)
			return err
		}))
	}
	a := actor.New(registry, opts...)
	w := watch.New(root, a, watch.WithLogger(logger), watch.WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	h := &host{root: root, probe: probe, registry: registry, actor: a, cancel: cancel, done: make(chan struct{})}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = w.Run(ctx)
	}()
	Eventually(w.Ready()).Should(BeClosed())

	go func() {
		defer close(h.done)
		_ = a.Run(ctx)
		<-watchDone
	}()
	return h
}

func (h *host) stop() {
	h.cancel()
	Eventually(h.done, 5*time.Second).Should(BeClosed())
}

func (h *host) names() []string {
	names := []string{}
	for _, info := range h.actor.Snapshot() {
		names = append(names, info.Name)
	}
	return names
}

// dropArchive writes the archive elsewhere and renames it into the root so
// the watcher only ever sees a complete file.
func dropArchive(root, base string, files map[string][]byte) string {
	staging := filepath.Join(GinkgoT().TempDir(), base+".plugin")
	plugintest.WriteArchive(GinkgoT(), staging, files)
	dst := filepath.Join(root, base+".plugin")
	Expect(os.Rename(staging, dst)).To(Succeed())
	return dst
}

var _ = Describe("Plugin host", func() {
	var (
		root string
		h    *host
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if h != nil {
			h.stop()
			h = nil
		}
	})

	Describe("initial scan", func() {
		It("loads every valid plugin and skips the broken one", func() {
			plugintest.PluginDir(GinkgoT(), root, "alpha", "alpha")
			plugintest.PluginArchive(GinkgoT(), root, "beta", "beta")
			plugintest.WriteDir(GinkgoT(), root, "broken", map[string][]byte{
				plugin.ManifestFile: []byte(`{"name":`),
			})

			h = startHost(root, true)

			Eventually(h.names).Should(Equal([]string{"alpha", "beta"}))
			Expect(h.probe.Count("execute:alpha")).To(Equal(1))
			Expect(h.probe.Count("execute:beta")).To(Equal(1))
		})
	})

	Describe("hot reload", func() {
		It("loads a new archive, reloads a replaced one and unloads a removed one", func() {
			h = startHost(root, true)

			archive := dropArchive(root, "hot", plugintest.PluginFiles(GinkgoT(), "hot"))
			Eventually(h.names).Should(Equal([]string{"hot"}))
			Eventually(func() int { return h.probe.Count("execute:hot") }).Should(Equal(1))

			dropArchive(root, "hot", plugintest.PluginFiles(GinkgoT(), "hot"))
			Eventually(func() int { return h.probe.Count("execute:hot") }).Should(Equal(2))
			Expect(h.names()).To(Equal([]string{"hot"}))

			Expect(os.Remove(archive)).To(Succeed())
			Eventually(h.names).Should(BeEmpty())
			Expect(filepath.Join(root, "hot")).NotTo(BeADirectory())
		})

		It("unloads a plugin whose archive becomes corrupt", func() {
			plugintest.PluginArchive(GinkgoT(), root, "gamma", "gamma")
			h = startHost(root, true)
			Eventually(h.names).Should(Equal([]string{"gamma"}))

			staging := filepath.Join(GinkgoT().TempDir(), "gamma.plugin")
			plugintest.CorruptArchive(GinkgoT(), staging)
			Expect(os.Rename(staging, filepath.Join(root, "gamma.plugin"))).To(Succeed())

			Eventually(h.names).Should(BeEmpty())
			Eventually(func() int { return h.probe.Count("destroy:gamma") }).Should(Equal(1))
			Expect(filepath.Join(root, "gamma")).NotTo(BeADirectory())
		})

		It("hot loads script plugins", func() {
			h = startHost(root, false)

			dropArchive(root, "script", map[string][]byte{
				plugin.ManifestFile: []byte(`{"name":"script","runtime":"lua"}`),
				"main.lua":          []byte(`function execute() end`),
			})

			Eventually(h.names).Should(Equal([]string{"script"}))
		})
	})

	Describe("commands", func() {
		It("applies load, unload, load in order", func() {
			outside := plugintest.PluginDir(GinkgoT(), GinkgoT().TempDir(), "alpha", "alpha")
			h = startHost(root, false)

			Expect(h.actor.Send(actor.Load(outside, actor.SourceControl))).To(Succeed())
			Expect(h.actor.Send(actor.Unload("alpha", actor.SourceControl))).To(Succeed())
			Expect(h.actor.Send(actor.Load(outside, actor.SourceControl))).To(Succeed())

			Eventually(func() int { return h.probe.Count("create:alpha") }).Should(Equal(2))
			Eventually(h.names).Should(Equal([]string{"alpha"}))
			Expect(h.probe.Count("destroy:alpha")).To(Equal(1))
			Expect(outside).To(BeADirectory(), "directories outside the root are never removed")
		})

		It("destroys every instance on shutdown", func() {
			plugintest.PluginDir(GinkgoT(), root, "alpha", "alpha")
			plugintest.PluginDir(GinkgoT(), root, "beta", "beta")
			h = startHost(root, true)
			Eventually(h.names).Should(HaveLen(2))

			probe := h.probe
			h.stop()
			h = nil

			Expect(probe.Count("destroy:alpha")).To(Equal(1))
			Expect(probe.Count("destroy:beta")).To(Equal(1))
			Expect(filepath.Join(root, "alpha")).To(BeADirectory())
		})
	})
})
