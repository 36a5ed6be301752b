// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import "github.com/samber/oops"

// Error codes for module loading failures.
const (
	CodeModuleNotFound  = "MODULE_NOT_FOUND"
	CodeSymbolMissing   = "SYMBOL_MISSING"
	CodeModuleLoadError = "MODULE_LOAD_ERROR"
)

// ErrModuleNotFound reports a library file that does not exist.
func ErrModuleNotFound(path string, cause error) error {
	b := oops.Code(CodeModuleNotFound).In("module").With("path", path)
	if cause != nil {
		return b.Wrapf(cause, "module not found")
	}
	return b.Errorf("module not found: %s", path)
}

// ErrSymbolMissing reports a library that lacks a required export.
func ErrSymbolMissing(path, symbol string, cause error) error {
	b := oops.Code(CodeSymbolMissing).In("module").With("path", path).With("symbol", symbol)
	if cause != nil {
		return b.Wrapf(cause, "symbol %s missing", symbol)
	}
	return b.Errorf("symbol %s missing", symbol)
}

// ErrModuleLoad reports a library that exists but could not be linked.
func ErrModuleLoad(path string, cause error) error {
	b := oops.Code(CodeModuleLoadError).In("module").With("path", path)
	if cause != nil {
		return b.Wrapf(cause, "failed to load module")
	}
	return b.Errorf("failed to load module %s", path)
}
