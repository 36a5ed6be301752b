// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/plugin/archive"
	"github.com/holomush/plughost/pkg/errutil"
)

// Failure is one entry LoadAll could not load.
type Failure struct {
	Path string
	Err  error
}

// Report summarizes a LoadAll scan.
type Report struct {
	Loaded   []string
	Failures []Failure
}

// Failed returns the number of entries that did not load.
func (rep Report) Failed() int {
	return len(rep.Failures)
}

// LoadAll loads every plugin directly under root. Packaged archives are
// extracted first; directories load as they are; other files are ignored.
//
// Failures are logged and collected in the report and never stop the scan.
// The only error returned is for a root that cannot be read, or ctx being
// cancelled between entries.
func (r *Registry) LoadAll(ctx context.Context, root string) (Report, error) {
	var rep Report

	entries, err := os.ReadDir(root)
	if err != nil {
		return rep, oops.In("registry").With("root", root).Wrapf(err, "failed to read plugins directory")
	}

	var archives, dirs []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(root, name)
		switch {
		case entry.IsDir():
			dirs = append(dirs, path)
		case entry.Type().IsRegular() && r.archives.Match(name):
			archives = append(archives, path)
		}
	}

	// A directory that is the working directory of an archive in this scan
	// is loaded through the archive, not twice.
	extracted := make(map[string]bool, len(archives))

	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return rep, err //nolint:wrapcheck // context errors pass through
		}
		extracted[archive.WorkingDir(path)] = true

		dir, err := archive.Extract(path)
		if err != nil {
			rep.fail(r, path, err)
			continue
		}
		r.loadOne(ctx, &rep, dir)
	}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return rep, err //nolint:wrapcheck // context errors pass through
		}
		if extracted[dir] {
			continue
		}
		r.loadOne(ctx, &rep, dir)
	}

	r.logger.Info("plugin scan complete",
		"root", root,
		"loaded", len(rep.Loaded),
		"failed", rep.Failed())

	return rep, nil
}

func (r *Registry) loadOne(ctx context.Context, rep *Report, dir string) {
	if err := r.Load(ctx, dir); err != nil {
		rep.fail(r, dir, err)
		return
	}
	rep.Loaded = append(rep.Loaded, dir)
}

func (rep *Report) fail(r *Registry, path string, err error) {
	errutil.LogError(r.logger, "failed to load plugin", err, "path", path)
	rep.Failures = append(rep.Failures, Failure{Path: path, Err: err})
}
