// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"errors"
	"io"
	"path/filepath"
	"sync"

	"github.com/holomush/plughost/pkg/pluginabi"
)

// Static serves modules compiled into the host binary. Libraries are looked
// up by filename; the file itself must still exist on disk so that static
// and native plugins share the same directory layout and failure modes.
type Static struct {
	mu      sync.RWMutex
	modules map[string]func() pluginabi.Exports
}

// Compile-time interface check.
var _ Opener = (*Static)(nil)

// NewStatic creates an empty static module set.
func NewStatic() *Static {
	return &Static{modules: make(map[string]func() pluginabi.Exports)}
}

// Register makes the exports returned by build available under the given
// library filename (e.g. LibraryFileName("hello")). build runs on every Open.
func (s *Static) Register(file string, build func() pluginabi.Exports) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[file] = build
}

// Open returns the module registered under path's base filename.
func (s *Static) Open(path string) (Module, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	build, ok := s.modules[filepath.Base(path)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrModuleLoad(path, errors.New("no built-in module registered for this file"))
	}

	exports := build()
	if exports == nil {
		return nil, ErrModuleLoad(path, errors.New("built-in module returned no exports"))
	}
	return &staticModule{Exports: exports}, nil
}

type staticModule struct {
	pluginabi.Exports
}

// Close releases the exports if they hold resources.
func (m *staticModule) Close() error {
	if c, ok := m.Exports.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // closer errors are already descriptive
	}
	return nil
}
