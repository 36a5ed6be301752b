// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/pkg/pluginabi"
)

// DuplicatePolicy decides what Load does when the name is already loaded.
type DuplicatePolicy string

// Duplicate policies.
const (
	// DuplicateOrphan replaces the table entry and leaves the previous
	// instance alive but unreachable until Close.
	DuplicateOrphan DuplicatePolicy = "orphan"
	// DuplicateReject refuses the load.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateReplace releases the previous instance (keeping its
	// directory) once the new one has been created and executed. A failed
	// load keeps the previous instance.
	DuplicateReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy validates a policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case DuplicateOrphan, DuplicateReject, DuplicateReplace:
		return p, nil
	default:
		return "", oops.In("registry").With("policy", s).
			Errorf("duplicate policy must be orphan, reject or replace, got %q", s)
	}
}

// DefaultArchivePattern matches packaged plugins.
const DefaultArchivePattern = "*.plugin"

// Entry is a loaded plugin.
type Entry struct {
	Name     string
	Dir      string
	Runtime  Runtime
	Version  string
	Handle   pluginabi.Handle
	Module   module.Module
	LoadedAt time.Time
}

// Info is a read-only description of an entry, safe to share across
// goroutines.
type Info struct {
	Name     string    `json:"name"`
	Dir      string    `json:"dir"`
	Runtime  Runtime   `json:"runtime"`
	Version  string    `json:"version,omitempty"`
	Handle   uint64    `json:"handle"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (e *Entry) info() Info {
	return Info{
		Name:     e.Name,
		Dir:      e.Dir,
		Runtime:  e.Runtime,
		Version:  e.Version,
		Handle:   uint64(e.Handle),
		LoadedAt: e.LoadedAt,
	}
}

// Registry is the name -> (instance, module) table.
type Registry struct {
	root      string
	openers   map[Runtime]module.Opener
	logger    *slog.Logger
	duplicate DuplicatePolicy
	archives  glob.Glob
	now       func() time.Time

	entries map[string]*Entry
	orphans []*Entry
}

// Option configures the Registry.
type Option func(*Registry)

// WithOpener sets the module opener for a runtime.
func WithOpener(rt Runtime, o module.Opener) Option {
	return func(r *Registry) {
		r.openers[rt] = o
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDuplicatePolicy sets how loads of an already loaded name behave.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) {
		r.duplicate = p
	}
}

// WithArchivePattern sets the glob LoadAll uses to recognize packaged
// plugins, matched against base filenames.
func WithArchivePattern(g glob.Glob) Option {
	return func(r *Registry) {
		if g != nil {
			r.archives = g
		}
	}
}

// NewRegistry creates an empty registry for plugins under root. Native
// modules are opened with module.Native unless overridden.
func NewRegistry(root string, opts ...Option) *Registry {
	r := &Registry{
		root:      root,
		openers:   map[Runtime]module.Opener{RuntimeNative: module.Native{}},
		logger:    slog.Default(),
		duplicate: DuplicateOrphan,
		archives:  glob.MustCompile(DefaultArchivePattern),
		now:       time.Now,
		entries:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the plugin root directory.
func (r *Registry) Root() string {
	return r.root
}

// Load reads dir's manifest, opens its module, creates an instance and runs
// it once. On failure the table is left as it was.
func (r *Registry) Load(_ context.Context, dir string) error {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	name := manifest.Name
	rt := manifest.EffectiveRuntime()

	opener, ok := r.openers[rt]
	if !ok {
		return module.ErrModuleLoad(manifest.ModulePath(dir), errors.New("no opener for runtime "+string(rt)))
	}

	if existing, ok := r.entries[name]; ok && r.duplicate == DuplicateReject {
		return ErrPluginAlreadyLoaded(name, existing.Dir)
	}

	path := manifest.ModulePath(dir)
	var mod module.Module
	if named, ok := opener.(module.NamedOpener); ok {
		mod, err = named.OpenNamed(path, name)
	} else {
		mod, err = opener.Open(path)
	}
	if err != nil {
		return err //nolint:wrapcheck // module errors carry their own code and path
	}

	var handle pluginabi.Handle
	if err := r.guard(name, "create", func() { handle = mod.Create() }); err != nil {
		r.closeModule(name, mod)
		return err
	}
	if handle.IsNull() {
		r.closeModule(name, mod)
		return module.ErrModuleLoad(path, errors.New(pluginabi.SymbolCreate+" returned a null handle"))
	}

	if err := r.guard(name, "execute", func() { mod.Execute(handle) }); err != nil {
		_ = r.guard(name, "destroy", func() { mod.Destroy(handle) })
		r.closeModule(name, mod)
		return err
	}

	entry := &Entry{
		Name:     name,
		Dir:      dir,
		Runtime:  rt,
		Version:  manifest.Version,
		Handle:   handle,
		Module:   mod,
		LoadedAt: r.now(),
	}

	if previous, ok := r.entries[name]; ok {
		if r.duplicate == DuplicateReplace {
			if err := r.release(previous); err != nil {
				r.logger.Warn("failed to release replaced plugin",
					"plugin", name,
					"error", err)
			}
		} else {
			r.orphans = append(r.orphans, previous)
			r.logger.Warn("plugin loaded again without unload; previous instance orphaned",
				"plugin", name,
				"previous_dir", previous.Dir,
				"previous_instance", previous.Handle.String())
		}
	}
	r.entries[name] = entry

	var reported string
	_ = r.guard(name, "name", func() { reported = mod.Name(handle) })
	r.logger.Info("plugin loaded",
		"plugin", name,
		"reported_name", reported,
		"runtime", rt,
		"version", manifest.Version,
		"dir", dir,
		"instance", handle.String())

	return nil
}

// Unload destroys name's instance, closes its module and removes its
// working directory. For an unknown name the directory <root>/<name> is
// still removed and INSTANCE_NOT_FOUND is returned, so a failed load's
// residue can be cleaned up with an explicit unload.
func (r *Registry) Unload(_ context.Context, name string) error {
	entry, ok := r.entries[name]
	dir := filepath.Join(r.root, name)

	var errs []error
	if ok {
		delete(r.entries, name)
		dir = entry.Dir
		if err := r.release(entry); err != nil {
			errs = append(errs, err)
		}
		r.logger.Info("plugin unloaded", "plugin", name)
	}

	if err := r.removeDir(name, dir); err != nil {
		errs = append(errs, err)
	}

	if !ok {
		return ErrInstanceNotFound(name)
	}
	return errors.Join(errs...)
}

// Close destroys every live and orphaned instance and closes their modules.
// Working directories are kept.
func (r *Registry) Close(_ context.Context) error {
	var errs []error
	for _, name := range r.names() {
		if err := r.release(r.entries[name]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, orphan := range r.orphans {
		if err := r.release(orphan); err != nil {
			errs = append(errs, err)
		}
	}
	clear(r.entries)
	r.orphans = nil
	return errors.Join(errs...)
}

// Get returns the live entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Len returns the number of live entries. Orphans are not counted.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Orphans returns the number of orphaned instances still alive.
func (r *Registry) Orphans() int {
	return len(r.orphans)
}

// Snapshot describes the live entries, sorted by name.
func (r *Registry) Snapshot() []Info {
	names := r.names()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, r.entries[name].info())
	}
	return infos
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// release destroys the instance strictly before closing its module.
func (r *Registry) release(e *Entry) error {
	destroyErr := r.guard(e.Name, "destroy", func() { e.Module.Destroy(e.Handle) })
	closeErr := e.Module.Close()
	if closeErr != nil {
		closeErr = oops.In("registry").With("plugin", e.Name).Wrapf(closeErr, "failed to close module")
	}
	return errors.Join(destroyErr, closeErr)
}

func (r *Registry) closeModule(name string, mod module.Module) {
	if err := mod.Close(); err != nil {
		r.logger.Warn("failed to close module after failed load",
			"plugin", name,
			"error", err)
	}
}

// removeDir deletes a working directory. Paths outside the plugin root are
// never removed.
func (r *Registry) removeDir(name, dir string) error {
	if !r.withinRoot(dir) {
		r.logger.Warn("not removing directory outside plugin root",
			"plugin", name,
			"dir", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return oops.In("registry").With("plugin", name).With("dir", dir).
			Wrapf(err, "failed to remove working directory")
	}
	r.logger.Debug("working directory removed", "plugin", name, "dir", dir)
	return nil
}

func (r *Registry) withinRoot(dir string) bool {
	root, err := filepath.Abs(r.root)
	if err != nil {
		return false
	}
	target, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// guard runs one boundary call, turning a panic into PLUGIN_PANIC.
func (r *Registry) guard(name, op string, fn func()) error {
	//nolint:wrapcheck // oops.Recover builds the coded error itself
	return oops.Code(CodePluginPanic).
		In("registry").
		With("plugin", name).
		With("operation", op).
		Recover(fn)
}
