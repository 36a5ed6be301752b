// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/module"
)

// newValidateCmd creates the validate subcommand. It works offline and does
// not need a running host.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a plugin directory's manifest and module file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := validatePluginDir(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: ok (%s, %s)\n", m.Name, m.EffectiveRuntime(), filepath.Base(m.ModulePath(args[0])))
			return nil
		},
	}
}

// validatePluginDir checks dir's manifest against the JSON schema and the
// manifest rules, then checks that the module file exists.
func validatePluginDir(dir string) (*plugin.Manifest, error) {
	path := filepath.Join(dir, plugin.ManifestFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, plugin.ErrManifestMissing(path, err)
		}
		return nil, plugin.ErrManifestParse(path, err)
	}

	if err := plugin.ValidateSchema(data); err != nil {
		return nil, oops.Code(plugin.CodeManifestParseError).In("cli").With("path", path).
			Errorf("%s", plugin.FormatSchemaError(err))
	}

	m, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, plugin.ErrManifestParse(path, err)
	}

	modulePath := m.ModulePath(dir)
	if _, err := os.Stat(modulePath); err != nil {
		return nil, module.ErrModuleNotFound(modulePath, err)
	}
	return m, nil
}
