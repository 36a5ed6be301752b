// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build darwin || linux

package module

import (
	"github.com/ebitengine/purego"
	"github.com/samber/oops"

	"github.com/holomush/plughost/pkg/pluginabi"
)

// Native opens shared libraries with the platform dynamic linker.
type Native struct{}

// Compile-time interface check.
var _ Opener = Native{}

// Open dlopens path and binds the four ABI exports. On any missing symbol
// the library is closed again before returning.
func (Native) Open(path string) (Module, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, ErrModuleLoad(path, err)
	}

	m := &nativeModule{path: path, lib: lib}
	bindings := map[string]any{
		pluginabi.SymbolCreate:  &m.create,
		pluginabi.SymbolExecute: &m.execute,
		pluginabi.SymbolName:    &m.name,
		pluginabi.SymbolDestroy: &m.destroy,
	}
	for _, symbol := range pluginabi.RequiredSymbols {
		sym, err := purego.Dlsym(lib, symbol)
		if err != nil {
			_ = purego.Dlclose(lib)
			return nil, ErrSymbolMissing(path, symbol, err)
		}
		purego.RegisterFunc(bindings[symbol], sym)
	}

	return m, nil
}

// nativeModule forwards the ABI to C functions in a dlopened library.
type nativeModule struct {
	path    string
	lib     uintptr
	create  func() uintptr
	execute func(uintptr)
	name    func(uintptr) string
	destroy func(uintptr)
}

func (m *nativeModule) Create() pluginabi.Handle {
	return pluginabi.Handle(m.create())
}

func (m *nativeModule) Execute(h pluginabi.Handle) {
	if h.IsNull() {
		return
	}
	m.execute(uintptr(h))
}

func (m *nativeModule) Name(h pluginabi.Handle) string {
	if h.IsNull() {
		return ""
	}
	return m.name(uintptr(h))
}

func (m *nativeModule) Destroy(h pluginabi.Handle) {
	if h.IsNull() {
		return
	}
	m.destroy(uintptr(h))
}

func (m *nativeModule) Close() error {
	if m.lib == 0 {
		return nil
	}
	lib := m.lib
	m.lib = 0
	if err := purego.Dlclose(lib); err != nil {
		return oops.In("module").With("path", m.path).Wrapf(err, "failed to close module")
	}
	return nil
}
