// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginabi

// Factory builds a fresh capability for every Create call.
type Factory func() Capability

// Adapter boxes capabilities into handles and implements [Exports] over them.
type Adapter struct {
	factory Factory
	table   Table[Capability]
}

// Compile-time interface check.
var _ Exports = (*Adapter)(nil)

// Adapt returns the exports for a capability factory.
// A nil factory yields an adapter whose Create always returns NullHandle.
func Adapt(factory Factory) *Adapter {
	return &Adapter{factory: factory}
}

// Create builds a capability from the factory and boxes it.
func (a *Adapter) Create() Handle {
	if a.factory == nil {
		return NullHandle
	}
	return a.CreateInstance(a.factory())
}

// CreateInstance boxes an existing capability. This is the generic entry
// point named by SymbolCreateInstance.
func (a *Adapter) CreateInstance(c Capability) Handle {
	if c == nil {
		return NullHandle
	}
	return a.table.Insert(c)
}

// Execute runs the capability behind h.
func (a *Adapter) Execute(h Handle) {
	if c, ok := a.table.Lookup(h); ok {
		c.Execute()
	}
}

// Name returns the capability's name, or "" if h is not live.
func (a *Adapter) Name(h Handle) string {
	if c, ok := a.table.Lookup(h); ok {
		return c.Name()
	}
	return ""
}

// Destroy releases h. Destroying a null or stale handle does nothing.
func (a *Adapter) Destroy(h Handle) {
	c, ok := a.table.Remove(h)
	if !ok {
		return
	}
	if d, ok := c.(Destroyer); ok {
		d.Destroy()
	}
}

// Live returns the number of instances that have not been destroyed.
func (a *Adapter) Live() int {
	return a.table.Len()
}
