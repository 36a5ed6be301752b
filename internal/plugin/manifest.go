// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/holomush/plughost/internal/plugin/module"
)

// ManifestFile is the descriptor every plugin directory carries.
const ManifestFile = "config.json"

// DefaultLuaEntry is the script loaded for lua plugins without an entry.
const DefaultLuaEntry = "main.lua"

// Runtime identifies how a plugin's module is opened.
type Runtime string

// Runtimes supported by the host.
const (
	RuntimeNative Runtime = "native"
	RuntimeLua    Runtime = "lua"
)

// Manifest represents a plugin's config.json.
type Manifest struct {
	Name        string  `json:"name" validate:"required,max=64,plugin_name" jsonschema:"minLength=1,maxLength=64,pattern=^[A-Za-z0-9][A-Za-z0-9._-]*$"`
	Runtime     Runtime `json:"runtime,omitempty" validate:"omitempty,oneof=native lua" jsonschema:"enum=native,enum=lua"`
	Entry       string  `json:"entry,omitempty" validate:"omitempty,max=255"`
	Version     string  `json:"version,omitempty"`
	Description string  `json:"description,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern keeps plugin names usable as filenames and registry keys.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("plugin_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ParseManifest parses and validates a config.json document.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, ErrManifestParse("", errors.New("manifest data is empty"))
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrManifestParse("", err)
	}

	if err := m.Validate(); err != nil {
		return nil, ErrManifestParse("", err)
	}

	return &m, nil
}

// ReadManifest reads dir/config.json.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the plugin directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrManifestMissing(path, err)
		}
		return nil, ErrManifestParse(path, err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, ErrManifestParse(path, err)
	}
	return m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err //nolint:wrapcheck // validator errors name the failing field
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return errors.Join(errors.New("version must be a semantic version"), err)
		}
	}
	if m.Entry != "" && !filepath.IsLocal(m.Entry) {
		return errors.New("entry must be a relative path inside the plugin directory")
	}
	return nil
}

// EffectiveRuntime returns the manifest's runtime, defaulting to native.
func (m *Manifest) EffectiveRuntime() Runtime {
	if m.Runtime == "" {
		return RuntimeNative
	}
	return m.Runtime
}

// ModulePath returns the file the plugin's module is opened from.
func (m *Manifest) ModulePath(dir string) string {
	if m.EffectiveRuntime() == RuntimeLua {
		entry := m.Entry
		if entry == "" {
			entry = DefaultLuaEntry
		}
		return filepath.Join(dir, entry)
	}
	return filepath.Join(dir, module.LibraryFileName(m.Name))
}
