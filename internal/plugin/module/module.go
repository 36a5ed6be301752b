// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package module opens plugin libraries and resolves their ABI exports.
package module

import (
	"errors"
	"io/fs"
	"os"
	"runtime"

	"github.com/holomush/plughost/pkg/pluginabi"
)

// Module is an opened plugin library.
//
// Close releases the library. Every instance created through the module
// must be destroyed before Close is called.
type Module interface {
	pluginabi.Exports
	Close() error
}

// Opener opens the library at path and resolves the four ABI symbols.
type Opener interface {
	Open(path string) (Module, error)
}

// NamedOpener is implemented by openers whose modules need the plugin name
// from the manifest, such as script runtimes that expose it to the script.
type NamedOpener interface {
	Opener
	OpenNamed(path, name string) (Module, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Module, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Module, error) {
	return f(path)
}

// LibraryFileName returns the platform library filename for a plugin name,
// e.g. libhello.so on linux.
func LibraryFileName(name string) string {
	return libraryFileName(runtime.GOOS, name)
}

func libraryFileName(goos, name string) string {
	switch goos {
	case "windows":
		return "lib" + name + ".dll"
	case "darwin", "ios":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

// checkExists maps a missing library file to MODULE_NOT_FOUND before the
// dynamic linker gets a chance to produce a less specific error.
func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrModuleNotFound(path, err)
		}
		return ErrModuleLoad(path, err)
	}
	if info.IsDir() {
		return ErrModuleLoad(path, errors.New("path is a directory"))
	}
	return nil
}
