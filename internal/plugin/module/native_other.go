// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !darwin && !linux && !windows

package module

import (
	"errors"
	"runtime"
)

// Native reports every open as a load error on platforms without a
// supported dynamic linker binding.
type Native struct{}

// Compile-time interface check.
var _ Opener = Native{}

// Open always fails after the existence check.
func (Native) Open(path string) (Module, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}
	return nil, ErrModuleLoad(path, errors.New("native modules are not supported on "+runtime.GOOS))
}
