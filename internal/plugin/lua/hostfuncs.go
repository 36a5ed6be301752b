// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"
)

// HostTable is the global scripts reach host functions through.
const HostTable = "plughost"

// registerHost installs the plughost table:
//
//	plughost.log(level, message)
//	plughost.plugin_name() -> string
//	plughost.new_id() -> string
func registerHost(L *lua.LState, logger *slog.Logger, plugin string) {
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(logFn(logger, plugin)))
	L.SetField(mod, "plugin_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(plugin))
		return 1
	}))
	L.SetField(mod, "new_id", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(ulid.Make().String()))
		return 1
	}))
	L.SetGlobal(HostTable, mod)
}

func logFn(logger *slog.Logger, plugin string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		l := logger.With("plugin", plugin, "source", "lua")
		switch level {
		case "debug":
			l.Debug(message)
		case "warn":
			l.Warn(message)
		case "error":
			l.Error(message)
		default:
			l.Info(message)
		}
		return 0
	}
}
