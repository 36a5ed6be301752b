// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginabi defines the boundary contract between plughost and the
// modules it loads.
//
// Every module exports four entry points under fixed symbol names:
//
//   - [SymbolCreate] allocates an instance and returns its [Handle]
//   - [SymbolExecute] runs the instance's behavior
//   - [SymbolName] returns the instance's stable identifier
//   - [SymbolDestroy] releases the instance
//
// Instances never cross the boundary as pointers. A module keeps its live
// instances in a [Table] and hands out integer handles; the host owns a
// handle from the moment Create returns until it calls Destroy exactly once.
// All four operations accept [NullHandle] and handles that were already
// destroyed without effect.
//
// # Writing a plugin
//
// Plugin authors implement [Capability] and let [Adapt] generate the four
// exports:
//
//	type hello struct{}
//
//	func (hello) Name() string { return "hello" }
//	func (hello) Execute()     { fmt.Println("hello") }
//
//	var exports = pluginabi.Adapt(func() pluginabi.Capability { return hello{} })
//
// A native module built with -buildmode=c-shared forwards its C exports to
// the adapter; see plugins/hello for a complete example.
package pluginabi
