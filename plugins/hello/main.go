// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build cgo

// Package main is a native plughost plugin that greets once per execute.
//
// Build it next to its manifest:
//
//	go build -buildmode=c-shared -o plugins/hello/libhello.so ./plugins/hello
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/holomush/plughost/pkg/pluginabi"
)

type hello struct {
	runs int
}

func (h *hello) Name() string { return "hello" }

func (h *hello) Execute() {
	h.runs++
	slog.Info("hello from a native plugin", "runs", h.runs)
}

func (h *hello) Destroy() {
	slog.Info("hello plugin destroyed", "runs", h.runs)
}

var exports = pluginabi.Adapt(func() pluginabi.Capability { return &hello{} })

// names keeps the C copy of each instance name alive until the instance is
// destroyed; the host copies the string on return.
var (
	namesMu sync.Mutex
	names   = make(map[pluginabi.Handle]*C.char)
)

//export create_plugin
func create_plugin() C.uintptr_t {
	return C.uintptr_t(exports.Create())
}

//export execute_plugin
func execute_plugin(h C.uintptr_t) {
	exports.Execute(pluginabi.Handle(h))
}

//export plugin_name
func plugin_name(h C.uintptr_t) *C.char {
	handle := pluginabi.Handle(h)
	name := exports.Name(handle)
	if name == "" {
		return nil
	}

	namesMu.Lock()
	defer namesMu.Unlock()
	if cs, ok := names[handle]; ok {
		return cs
	}
	cs := C.CString(name)
	names[handle] = cs
	return cs
}

//export destroy_plugin_instance
func destroy_plugin_instance(h C.uintptr_t) {
	handle := pluginabi.Handle(h)
	exports.Destroy(handle)

	namesMu.Lock()
	defer namesMu.Unlock()
	if cs, ok := names[handle]; ok {
		C.free(unsafe.Pointer(cs))
		delete(names, handle)
	}
}

func main() {}
