// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/plughost/internal/plugin/actor"
	"github.com/holomush/plughost/internal/plugin/plugintest"
	"github.com/holomush/plughost/internal/plugin/watch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanSink chan actor.Command

func (s chanSink) Send(cmd actor.Command) error {
	s <- cmd
	return nil
}

// startWatcher runs w until the test ends.
func startWatcher(t *testing.T, w *watch.Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
}

func next(t *testing.T, sink chanSink) actor.Command {
	t.Helper()
	select {
	case cmd := <-sink:
		return cmd
	case <-time.After(5 * time.Second):
		t.Fatal("no command received")
		return actor.Command{}
	}
}

func quiet(t *testing.T, sink chanSink, d time.Duration) {
	t.Helper()
	select {
	case cmd := <-sink:
		t.Fatalf("unexpected command %s %s", cmd.Kind, cmd.Target())
	case <-time.After(d):
	}
}

// moveInto writes files as a zip next to root and renames it to
// root/base.plugin so the watcher sees one complete archive.
func moveInto(t *testing.T, root, base string, files map[string][]byte) string {
	t.Helper()
	staging := filepath.Join(t.TempDir(), base+".zip")
	plugintest.WriteArchive(t, staging, files)
	dst := filepath.Join(root, base+".plugin")
	require.NoError(t, os.Rename(staging, dst))
	return dst
}

func TestWatcher_NewArchiveSendsLoad(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	startWatcher(t, watch.New(root, sink))

	moveInto(t, root, "hello", plugintest.PluginFiles(t, "hello"))

	cmd := next(t, sink)
	assert.Equal(t, actor.KindLoad, cmd.Kind)
	assert.Equal(t, filepath.Join(root, "hello"), cmd.Dir)
	assert.FileExists(t, filepath.Join(root, "hello", "config.json"))
}

func TestWatcher_CorruptArchiveSendsUnload(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	startWatcher(t, watch.New(root, sink))

	staging := filepath.Join(t.TempDir(), "broken.zip")
	plugintest.CorruptArchive(t, staging)
	require.NoError(t, os.Rename(staging, filepath.Join(root, "broken.plugin")))

	cmd := next(t, sink)
	assert.Equal(t, actor.KindUnload, cmd.Kind)
	assert.Equal(t, "broken", cmd.Name)
}

func TestWatcher_RemovedArchiveSendsUnload(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	startWatcher(t, watch.New(root, sink))

	path := moveInto(t, root, "gone", plugintest.PluginFiles(t, "gone"))
	require.Equal(t, actor.KindLoad, next(t, sink).Kind)

	require.NoError(t, os.Remove(path))
	cmd := next(t, sink)
	assert.Equal(t, actor.KindUnload, cmd.Kind)
	assert.Equal(t, "gone", cmd.Name)
}

func TestWatcher_IgnoresUnmatchedAndHiddenFiles(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	startWatcher(t, watch.New(root, sink))

	plugintest.WriteFile(t, filepath.Join(root, "notes.txt"), []byte("x"))
	plugintest.WriteFile(t, filepath.Join(root, ".hidden.plugin"), []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "plain-dir"), 0o750))

	quiet(t, sink, 200*time.Millisecond)
}

func TestWatcher_CustomPattern(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	startWatcher(t, watch.New(root, sink, watch.WithPattern(glob.MustCompile("*.{plugin,zip}"))))

	staging := filepath.Join(t.TempDir(), "other.tmp")
	plugintest.WriteArchive(t, staging, plugintest.PluginFiles(t, "other"))
	require.NoError(t, os.Rename(staging, filepath.Join(root, "other.zip")))

	cmd := next(t, sink)
	assert.Equal(t, actor.KindLoad, cmd.Kind)
	assert.Equal(t, filepath.Join(root, "other"), cmd.Dir)
}

func TestWatcher_DebounceCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	sink := make(chanSink, 16)
	var extractions atomic.Int32
	w := watch.New(root, sink,
		watch.WithDebounce(100*time.Millisecond),
		watch.WithExtractor(func(p string) (string, error) {
			extractions.Add(1)
			return filepath.Join(root, "burst"), nil
		}),
	)
	startWatcher(t, w)

	path := filepath.Join(root, "burst.plugin")
	for i := range 5 {
		plugintest.WriteFile(t, path, []byte{byte(i)})
	}

	cmd := next(t, sink)
	assert.Equal(t, actor.KindLoad, cmd.Kind)
	quiet(t, sink, 300*time.Millisecond)
	assert.Equal(t, int32(1), extractions.Load())
}

func TestWatcher_MissingRootFails(t *testing.T) {
	w := watch.New(filepath.Join(t.TempDir(), "missing"), make(chanSink, 1))
	err := w.Run(context.Background())
	require.Error(t, err)
}
