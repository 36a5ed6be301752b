// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugintest provides fixtures for plugin host tests: plugin
// directories, packaged archives and a recording in-process module.
package plugintest

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/plugin/module"
)

// T is the subset of testing.TB used by the helpers. Satisfied by
// *testing.T and by GinkgoT().
type T interface {
	require.TestingT
	Helper()
}

// ManifestFile is the manifest filename fixtures are written under.
const ManifestFile = "config.json"

// WriteFile writes content to path, creating parent directories.
func WriteFile(t T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

// ManifestJSON returns a minimal manifest for name.
func ManifestJSON(t T, name string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{"name": name})
	require.NoError(t, err)
	return data
}

// PluginFiles returns the files of a native plugin named name: its
// manifest and a placeholder library.
func PluginFiles(t T, name string) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		ManifestFile:                 ManifestJSON(t, name),
		module.LibraryFileName(name): []byte("placeholder"),
	}
}

// WriteDir creates root/dirName holding files and returns its path.
func WriteDir(t T, root, dirName string, files map[string][]byte) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for name, content := range files {
		WriteFile(t, filepath.Join(dir, name), content)
	}
	return dir
}

// PluginDir creates root/dirName as an extracted native plugin named name.
func PluginDir(t T, root, dirName, name string) string {
	t.Helper()
	return WriteDir(t, root, dirName, PluginFiles(t, name))
}

// WriteArchive writes a zip archive at path holding files.
func WriteArchive(t T, path string, files map[string][]byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))

	f, err := os.Create(path) //nolint:gosec // test fixture path
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// PluginArchive writes root/archiveBase.plugin packaging a native plugin
// named name and returns the archive path.
func PluginArchive(t T, root, archiveBase, name string) string {
	t.Helper()
	path := filepath.Join(root, archiveBase+".plugin")
	WriteArchive(t, path, PluginFiles(t, name))
	return path
}

// CorruptArchive writes bytes at path that are not a valid zip file.
func CorruptArchive(t T, path string) {
	t.Helper()
	WriteFile(t, path, []byte("PK\x03\x04 truncated"))
}
