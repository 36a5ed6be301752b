// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build darwin || linux

package plugin_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/pkg/pluginabi"
)

// buildHello compiles plugins/hello as a shared library into a fresh plugin
// directory under root and returns that directory.
func buildHello(t *testing.T, root string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a shared library")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not available")
	}

	goEnv := func(key string) string {
		out, err := exec.CommandContext(t.Context(), goBin, "env", key).Output()
		require.NoError(t, err)
		return strings.TrimSpace(string(out))
	}
	if goEnv("CGO_ENABLED") != "1" {
		t.Skip("cgo is disabled")
	}
	gomod := goEnv("GOMOD")
	require.NotEmpty(t, gomod)
	moduleRoot := filepath.Dir(gomod)

	dir := filepath.Join(root, "hello")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	manifest, err := os.ReadFile(filepath.Join(moduleRoot, "plugins", "hello", plugin.ManifestFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), manifest, 0o600))

	build := exec.CommandContext(t.Context(), goBin, "build", "-buildmode=c-shared",
		"-o", filepath.Join(dir, module.LibraryFileName("hello")), "./plugins/hello")
	build.Dir = moduleRoot
	if out, err := build.CombinedOutput(); err != nil {
		t.Skipf("cannot build shared library: %v\n%s", err, out)
	}
	return dir
}

func TestNative_HelloPlugin(t *testing.T) {
	root := t.TempDir()
	dir := buildHello(t, root)

	t.Run("module exports", func(t *testing.T) {
		mod, err := module.Native{}.Open(filepath.Join(dir, module.LibraryFileName("hello")))
		require.NoError(t, err)
		defer func() { assert.NoError(t, mod.Close()) }()

		assert.NotPanics(t, func() {
			mod.Execute(pluginabi.NullHandle)
			mod.Destroy(pluginabi.NullHandle)
		})
		assert.Empty(t, mod.Name(pluginabi.NullHandle))

		h := mod.Create()
		require.False(t, h.IsNull())
		assert.Equal(t, "hello", mod.Name(h))
		mod.Execute(h)
		mod.Destroy(h)
		assert.Empty(t, mod.Name(h), "destroyed handles are unknown")
	})

	t.Run("registry round trip", func(t *testing.T) {
		r := plugin.NewRegistry(root)
		ctx := t.Context()

		require.NoError(t, r.Load(ctx, dir))
		entry, ok := r.Get("hello")
		require.True(t, ok)
		assert.Equal(t, plugin.RuntimeNative, entry.Runtime)
		assert.Equal(t, "0.1.0", entry.Version)

		require.NoError(t, r.Unload(ctx, "hello"))
		assert.Equal(t, 0, r.Len())
		assert.NoDirExists(t, dir)
	})
}
