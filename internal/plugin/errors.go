// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/plugin/archive"
	"github.com/holomush/plughost/internal/plugin/module"
)

// Error codes for plugin lifecycle failures. Module and archive codes are
// re-exported so callers can switch on a single set.
const (
	CodeManifestMissing     = "MANIFEST_MISSING"
	CodeManifestParseError  = "MANIFEST_PARSE_ERROR"
	CodeInstanceNotFound    = "INSTANCE_NOT_FOUND"
	CodePluginAlreadyLoaded = "PLUGIN_ALREADY_LOADED"
	CodePluginPanic         = "PLUGIN_PANIC"

	CodeModuleNotFound  = module.CodeModuleNotFound
	CodeSymbolMissing   = module.CodeSymbolMissing
	CodeModuleLoadError = module.CodeModuleLoadError
	CodeExtractionError = archive.CodeExtractionError
)

// ErrManifestMissing reports a plugin directory without config.json.
func ErrManifestMissing(path string, cause error) error {
	return oops.Code(CodeManifestMissing).
		In("manifest").
		With("path", path).
		Wrapf(cause, "manifest missing")
}

// ErrManifestParse reports a manifest that is not valid JSON or fails
// validation. An inner manifest error keeps its code and gains the path.
func ErrManifestParse(path string, cause error) error {
	b := oops.Code(CodeManifestParseError).In("manifest")
	if path != "" {
		b = b.With("path", path)
	}
	return b.Wrapf(cause, "invalid manifest")
}

// ErrInstanceNotFound reports an unload for a name with no live entry.
func ErrInstanceNotFound(name string) error {
	return oops.Code(CodeInstanceNotFound).
		In("registry").
		With("plugin", name).
		Errorf("plugin %s not found", name)
}

// ErrPluginAlreadyLoaded reports a load rejected by the duplicate policy.
func ErrPluginAlreadyLoaded(name, dir string) error {
	return oops.Code(CodePluginAlreadyLoaded).
		In("registry").
		With("plugin", name).
		With("dir", dir).
		Errorf("plugin %s already loaded", name)
}
