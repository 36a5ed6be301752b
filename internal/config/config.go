// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads plughost settings from an optional YAML file
// overlaid by command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plughost/internal/logging"
	"github.com/holomush/plughost/internal/plugin"
)

// CodeConfigInvalid marks configuration that could not be loaded or failed
// validation.
const CodeConfigInvalid = "CONFIG_INVALID"

// Default values.
const (
	DefaultArchivePattern = plugin.DefaultArchivePattern
	DefaultDuplicate      = string(plugin.DuplicateOrphan)
	DefaultRetryBackoff   = 100 * time.Millisecond
	DefaultMetricsAddr    = "127.0.0.1:9110"
	DefaultLogFormat      = "json"
	DefaultLogLevel       = "info"
)

// Config holds the runtime settings of the host.
type Config struct {
	PluginsDir     string        `koanf:"plugins_dir"`
	ArchivePattern string        `koanf:"archive_pattern"`
	Duplicate      string        `koanf:"duplicate"`
	Watch          bool          `koanf:"watch"`
	Debounce       time.Duration `koanf:"debounce"`
	ExtractRetries uint64        `koanf:"extract_retries"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
	UnloadOnExit   bool          `koanf:"unload_on_exit"`
	MetricsAddr    string        `koanf:"metrics_addr"`
	Control        bool          `koanf:"control"`
	LogFormat      string        `koanf:"log_format"`
	LogLevel       string        `koanf:"log_level"`
}

// RegisterFlags defines one flag per key. Flag names use dashes,
// e.g. --plugins-dir for plugins_dir. pluginsDir is the default root.
func RegisterFlags(flags *pflag.FlagSet, pluginsDir string) {
	flags.String("plugins-dir", pluginsDir, "directory holding plugin archives and directories")
	flags.String("archive-pattern", DefaultArchivePattern, "glob matching packaged plugin filenames")
	flags.String("duplicate", DefaultDuplicate, "loading an already loaded name: orphan, reject or replace")
	flags.Bool("watch", true, "reload archives when they change")
	flags.Duration("debounce", 0, "coalesce changes to one archive within this window")
	flags.Uint64("extract-retries", 0, "retry a failed extraction this many times before unloading")
	flags.Duration("retry-backoff", DefaultRetryBackoff, "wait between extraction retries")
	flags.Bool("unload-on-exit", true, "destroy every plugin on shutdown")
	flags.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.Bool("control", true, "serve the control socket")
	flags.String("log-format", DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", DefaultLogLevel, "minimum log level (debug, info, warn, error)")
}

// Load reads path (skipped when empty, or when missing and optional is
// true) and overlays every flag of flags that was set, plus the defaults of
// keys the file does not mention.
func Load(path string, optional bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !optional || !isNotExist(path) {
				return nil, oops.Code(CodeConfigInvalid).In("config").With("path", path).
					Wrapf(err, "failed to load config file")
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeConfigInvalid).In("config").Wrapf(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeConfigInvalid).In("config").Wrapf(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	fail := func(key string, format string, args ...any) error {
		return oops.Code(CodeConfigInvalid).In("config").With("key", key).Errorf(format, args...)
	}

	if c.PluginsDir == "" {
		return fail("plugins_dir", "plugins_dir is required")
	}
	if _, err := glob.Compile(c.ArchivePattern); err != nil || c.ArchivePattern == "" {
		return fail("archive_pattern", "archive_pattern %q is not a valid glob", c.ArchivePattern)
	}
	if _, err := plugin.ParseDuplicatePolicy(c.Duplicate); err != nil {
		return fail("duplicate", "duplicate must be orphan, reject or replace, got %q", c.Duplicate)
	}
	if c.Debounce < 0 {
		return fail("debounce", "debounce must not be negative")
	}
	if c.RetryBackoff < 0 {
		return fail("retry_backoff", "retry_backoff must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fail("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fail("log_level", "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// ArchiveGlob compiles ArchivePattern. Call after Validate.
func (c *Config) ArchiveGlob() glob.Glob {
	return glob.MustCompile(c.ArchivePattern)
}

// DuplicatePolicy returns Duplicate as a policy. Call after Validate.
func (c *Config) DuplicatePolicy() plugin.DuplicatePolicy {
	return plugin.DuplicatePolicy(c.Duplicate)
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func isNotExist(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
