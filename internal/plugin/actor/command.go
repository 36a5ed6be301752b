// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package actor

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the operation a command asks for.
type Kind uint8

// Command kinds.
const (
	KindLoad Kind = iota + 1
	KindUnload
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Source is the producer that issued a command.
type Source string

// Command sources.
const (
	SourceScan    Source = "scan"
	SourceWatch   Source = "watch"
	SourceControl Source = "control"
)

// Command is one unit of registry work. Load uses Dir, Unload uses Name.
type Command struct {
	ID     ulid.ULID
	Kind   Kind
	Dir    string
	Name   string
	Source Source
}

// Load returns a command loading the plugin directory dir.
func Load(dir string, src Source) Command {
	return Command{ID: newID(), Kind: KindLoad, Dir: dir, Source: src}
}

// Unload returns a command unloading the plugin called name.
func Unload(name string, src Source) Command {
	return Command{ID: newID(), Kind: KindUnload, Name: name, Source: src}
}

// Target returns the directory or name the command acts on.
func (c Command) Target() string {
	if c.Kind == KindLoad {
		return c.Dir
	}
	return c.Name
}

// LogAttrs returns the slog attributes identifying c.
func (c Command) LogAttrs() []any {
	return []any{
		"command_id", c.ID.String(),
		"kind", c.Kind.String(),
		"target", c.Target(),
		"source", string(c.Source),
	}
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newID returns a ULID that sorts after every ID issued before it.
func newID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}
