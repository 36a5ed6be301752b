// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build windows

package module

import (
	"unsafe"

	"github.com/samber/oops"
	"golang.org/x/sys/windows"

	"github.com/holomush/plughost/pkg/pluginabi"
)

// Native opens DLLs with LoadLibrary.
type Native struct{}

// Compile-time interface check.
var _ Opener = Native{}

// Open loads path and resolves the four ABI exports. On any missing symbol
// the DLL is released again before returning.
func (Native) Open(path string) (Module, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}

	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, ErrModuleLoad(path, err)
	}

	m := &nativeModule{path: path, dll: dll}
	procs := map[string]**windows.Proc{
		pluginabi.SymbolCreate:  &m.create,
		pluginabi.SymbolExecute: &m.execute,
		pluginabi.SymbolName:    &m.name,
		pluginabi.SymbolDestroy: &m.destroy,
	}
	for _, symbol := range pluginabi.RequiredSymbols {
		proc, err := dll.FindProc(symbol)
		if err != nil {
			_ = dll.Release()
			return nil, ErrSymbolMissing(path, symbol, err)
		}
		*procs[symbol] = proc
	}

	return m, nil
}

type nativeModule struct {
	path    string
	dll     *windows.DLL
	create  *windows.Proc
	execute *windows.Proc
	name    *windows.Proc
	destroy *windows.Proc
}

func (m *nativeModule) Create() pluginabi.Handle {
	r, _, _ := m.create.Call()
	return pluginabi.Handle(r)
}

func (m *nativeModule) Execute(h pluginabi.Handle) {
	if h.IsNull() {
		return
	}
	_, _, _ = m.execute.Call(uintptr(h))
}

func (m *nativeModule) Name(h pluginabi.Handle) string {
	if h.IsNull() {
		return ""
	}
	r, _, _ := m.name.Call(uintptr(h))
	if r == 0 {
		return ""
	}
	// The string is owned by the module and valid while the instance lives.
	return windows.BytePtrToString((*byte)(unsafe.Pointer(r))) //nolint:govet // pointer returned by the DLL
}

func (m *nativeModule) Destroy(h pluginabi.Handle) {
	if h.IsNull() {
		return
	}
	_, _, _ = m.destroy.Call(uintptr(h))
}

func (m *nativeModule) Close() error {
	if m.dll == nil {
		return nil
	}
	dll := m.dll
	m.dll = nil
	if err := dll.Release(); err != nil {
		return oops.In("module").With("path", m.path).Wrapf(err, "failed to release module")
	}
	return nil
}
