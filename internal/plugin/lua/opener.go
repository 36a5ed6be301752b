// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/pkg/pluginabi"
)

// Globals a script module defines. Only execute is required.
const (
	GlobalExecute = "execute"
	GlobalName    = "name"
	GlobalDestroy = "destroy"
)

// Opener compiles Lua scripts into modules.
type Opener struct {
	factory *StateFactory
	logger  *slog.Logger
}

// NewOpener returns an opener logging through logger, or slog.Default()
// when logger is nil.
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{factory: NewStateFactory(), logger: logger}
}

var _ module.NamedOpener = (*Opener)(nil)

// Open is OpenNamed with the plugin named after the script's directory.
func (o *Opener) Open(path string) (module.Module, error) {
	return o.OpenNamed(path, filepath.Base(filepath.Dir(path)))
}

// OpenNamed compiles the script at path and runs it once in a throwaway
// state to check it defines execute. The plugin is called name unless the
// script sets its own name global.
func (o *Opener) OpenNamed(path, name string) (module.Module, error) {
	src, err := os.ReadFile(path) //nolint:gosec // path comes from the plugin manifest
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, module.ErrModuleNotFound(path, err)
		}
		return nil, module.ErrModuleLoad(path, err)
	}

	chunk, err := parse.Parse(bytes.NewReader(src), path)
	if err != nil {
		return nil, module.ErrModuleLoad(path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, module.ErrModuleLoad(path, err)
	}

	m := &scriptModule{
		path:    path,
		plugin:  name,
		proto:   proto,
		factory: o.factory,
		logger:  o.logger,
	}

	L, err := m.newState()
	if err != nil {
		return nil, err
	}
	defer L.Close()
	if _, ok := L.GetGlobal(GlobalExecute).(*lua.LFunction); !ok {
		return nil, module.ErrSymbolMissing(path, GlobalExecute, nil)
	}

	o.logger.Debug("lua module opened", "path", path)
	return m, nil
}

// scriptModule implements module.Module on top of a compiled chunk.
type scriptModule struct {
	path    string
	plugin  string
	proto   *lua.FunctionProto
	factory *StateFactory
	logger  *slog.Logger

	instances pluginabi.Table[*lua.LState]
}

// newState creates a sandboxed state and runs the chunk in it.
func (m *scriptModule) newState() (*lua.LState, error) {
	L, err := m.factory.NewState(context.Background())
	if err != nil {
		return nil, module.ErrModuleLoad(m.path, err)
	}
	registerHost(L, m.logger, m.plugin)

	L.Push(L.NewFunctionFromProto(m.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, module.ErrModuleLoad(m.path, err)
	}
	return L, nil
}

// Create runs the chunk in a fresh state. A failing chunk yields the null
// handle.
func (m *scriptModule) Create() pluginabi.Handle {
	L, err := m.newState()
	if err != nil {
		m.logger.Warn("lua instance creation failed",
			"plugin", m.plugin,
			"error", err)
		return pluginabi.NullHandle
	}
	return m.instances.Insert(L)
}

// Execute calls the script's execute function. Script errors are logged.
func (m *scriptModule) Execute(h pluginabi.Handle) {
	L, ok := m.instances.Lookup(h)
	if !ok {
		return
	}
	if err := m.call(L, GlobalExecute); err != nil {
		m.logger.Error("lua execute failed",
			"plugin", m.plugin,
			"instance", h.String(),
			"error", err)
	}
}

// Name returns the script's name global, or the plugin name.
func (m *scriptModule) Name(h pluginabi.Handle) string {
	L, ok := m.instances.Lookup(h)
	if !ok {
		return ""
	}
	if s, ok := L.GetGlobal(GlobalName).(lua.LString); ok && s != "" {
		return string(s)
	}
	return m.plugin
}

// Destroy calls the optional destroy function and closes the state.
func (m *scriptModule) Destroy(h pluginabi.Handle) {
	L, ok := m.instances.Remove(h)
	if !ok {
		return
	}
	defer L.Close()
	if _, ok := L.GetGlobal(GlobalDestroy).(*lua.LFunction); !ok {
		return
	}
	if err := m.call(L, GlobalDestroy); err != nil {
		m.logger.Warn("lua destroy failed",
			"plugin", m.plugin,
			"instance", h.String(),
			"error", err)
	}
}

// Close closes states of instances that were never destroyed.
func (m *scriptModule) Close() error {
	for _, L := range m.instances.Drain() {
		L.Close()
	}
	return nil
}

func (m *scriptModule) call(L *lua.LState, global string) error {
	fn, ok := L.GetGlobal(global).(*lua.LFunction)
	if !ok {
		return module.ErrSymbolMissing(m.path, global, nil)
	}
	//nolint:wrapcheck // lua errors carry the script position
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}
