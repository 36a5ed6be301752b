// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schema for plugin config.json files.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plughost/internal/plugin"
)

const defaultOutput = "schemas/plugin.schema.json"

func main() {
	flags := pflag.NewFlagSet("gen-schema", pflag.ExitOnError)
	out := flags.StringP("output", "o", defaultOutput, "file to write the schema to")
	_ = flags.Parse(os.Args[1:])

	if err := generate(*out, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// generate writes the manifest schema to outPath and reports it on w.
func generate(outPath string, w io.Writer) error {
	schema, err := plugin.GenerateSchema()
	if err != nil {
		return oops.In("gen-schema").Wrapf(err, "failed to generate schema")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return oops.In("gen-schema").With("path", outPath).Wrapf(err, "failed to create directory")
	}
	if err := os.WriteFile(outPath, append(schema, '\n'), 0o600); err != nil {
		return oops.In("gen-schema").With("path", outPath).Wrapf(err, "failed to write schema")
	}

	_, _ = fmt.Fprintf(w, "Generated %s\n", outPath)
	return nil
}
