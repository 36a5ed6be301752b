// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginabi

import "strconv"

// Handle is an opaque reference to a live plugin instance.
type Handle uint64

// NullHandle never refers to a live instance.
const NullHandle Handle = 0

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool {
	return h == NullHandle
}

func (h Handle) String() string {
	return "handle#" + strconv.FormatUint(uint64(h), 10)
}

// Exported symbol names every module provides.
const (
	SymbolCreate  = "create_plugin"
	SymbolExecute = "execute_plugin"
	SymbolName    = "plugin_name"
	SymbolDestroy = "destroy_plugin_instance"

	// SymbolCreateInstance names the optional generic entry point that boxes
	// an already constructed capability (Adapter.CreateInstance). Loaders
	// never require it: a capability is a Go value of the module's own
	// runtime, so shared libraries only reach it from their own exports.
	SymbolCreateInstance = "create_plugin_instance"
)

// RequiredSymbols lists the exports a module must resolve to be loadable,
// in the order loaders bind them.
var RequiredSymbols = []string{SymbolCreate, SymbolExecute, SymbolName, SymbolDestroy}

// Exports is the four-operation boundary a loaded module presents.
//
// Execute, Name and Destroy must tolerate NullHandle and stale handles.
type Exports interface {
	// Create allocates an instance. Ownership of the handle passes to the caller.
	Create() Handle
	// Execute invokes the instance's behavior.
	Execute(h Handle)
	// Name returns the instance's identifier, or "" for an unknown handle.
	Name(h Handle) string
	// Destroy releases the instance. The handle is invalid afterwards.
	Destroy(h Handle)
}

// Capability is the only interface a plugin author implements.
type Capability interface {
	Name() string
	Execute()
}

// Destroyer is implemented by capabilities that hold resources of their own.
// Destroy is called once, when the owning instance is destroyed.
type Destroyer interface {
	Destroy()
}
