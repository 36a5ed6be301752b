// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugintest

import (
	"sync"

	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/pkg/pluginabi"
)

// Probe records every boundary call made on the modules it serves.
type Probe struct {
	mu     sync.Mutex
	events []string
	panics map[string]bool
}

// NewProbe returns an empty probe.
func NewProbe() *Probe {
	return &Probe{panics: make(map[string]bool)}
}

// Register serves a recording module for the plugin name through s.
func (p *Probe) Register(s *module.Static, name string) {
	s.Register(module.LibraryFileName(name), func() pluginabi.Exports {
		p.record("open:" + name)
		return &probeExports{
			Adapter: pluginabi.Adapt(func() pluginabi.Capability {
				p.record("create:" + name)
				return &probeCapability{probe: p, name: name}
			}),
			probe: p,
			name:  name,
		}
	})
}

// PanicOnExecute makes execute of plugin name panic.
func (p *Probe) PanicOnExecute(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panics[name] = true
}

// Events returns the recorded calls in order, e.g. "destroy:hello".
func (p *Probe) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Count returns how many times event was recorded.
func (p *Probe) Count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func (p *Probe) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *Probe) shouldPanic(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.panics[name]
}

type probeExports struct {
	*pluginabi.Adapter
	probe *Probe
	name  string
}

func (e *probeExports) Close() error {
	e.probe.record("close:" + e.name)
	return nil
}

type probeCapability struct {
	probe *Probe
	name  string
}

func (c *probeCapability) Name() string { return c.name }

func (c *probeCapability) Execute() {
	c.probe.record("execute:" + c.name)
	if c.probe.shouldPanic(c.name) {
		panic("probe: execute failed for " + c.name)
	}
}

func (c *probeCapability) Destroy() {
	c.probe.record("destroy:" + c.name)
}
