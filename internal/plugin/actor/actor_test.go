// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package actor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/actor"
	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/internal/plugin/plugintest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTarget records calls and keeps a set of loaded names.
type fakeTarget struct {
	mu     sync.Mutex
	calls  []string
	loaded map[string]bool
	fail   map[string]error
	block  chan struct{}
	began  chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{loaded: map[string]bool{}, fail: map[string]error{}}
}

func (f *fakeTarget) Load(_ context.Context, dir string) error {
	if f.began != nil {
		f.began <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "load "+dir)
	if err := f.fail[dir]; err != nil {
		return err
	}
	f.loaded[dir] = true
	return nil
}

func (f *fakeTarget) Unload(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unload "+name)
	if !f.loaded[name] {
		return plugin.ErrInstanceNotFound(name)
	}
	delete(f.loaded, name)
	return nil
}

func (f *fakeTarget) Snapshot() []plugin.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]plugin.Info, 0, len(f.loaded))
	for name := range f.loaded {
		infos = append(infos, plugin.Info{Name: name})
	}
	return infos
}

func (f *fakeTarget) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTarget) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeRecorder collects what the actor reports.
type fakeRecorder struct {
	mu       sync.Mutex
	done     []string
	failures []string
	loaded   int
}

func (r *fakeRecorder) CommandDone(kind, source, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, kind+"/"+source+"/"+status)
}

func (r *fakeRecorder) LoadFailed(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, code)
}

func (r *fakeRecorder) PluginsLoaded(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = n
}

func (r *fakeRecorder) QueueDepth(int) {}

// runUntilDrained closes the actor after the queued commands and waits for
// Run to return.
func runUntilDrained(t *testing.T, a *actor.Actor) {
	t.Helper()
	a.Close()
	require.NoError(t, a.Run(context.Background()))
}

func TestActor_LoadUnloadLoadLeavesOneFreshInstance(t *testing.T) {
	root := t.TempDir()
	dir := plugintest.PluginDir(t, t.TempDir(), "A", "A")

	probe := plugintest.NewProbe()
	static := module.NewStatic()
	probe.Register(static, "A")
	reg := plugin.NewRegistry(root, plugin.WithOpener(plugin.RuntimeNative, static))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	a := actor.New(reg)
	require.NoError(t, a.Send(actor.Load(dir, actor.SourceWatch)))
	require.NoError(t, a.Send(actor.Unload("A", actor.SourceWatch)))
	require.NoError(t, a.Send(actor.Load(dir, actor.SourceWatch)))
	runUntilDrained(t, a)

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "A", snap[0].Name)
	assert.Equal(t, 2, probe.Count("create:A"))
	assert.Equal(t, 1, probe.Count("destroy:A"))
	assert.Zero(t, reg.Orphans())
}

func TestActor_ProcessesInSendOrder(t *testing.T) {
	target := newFakeTarget()
	a := actor.New(target)

	want := make([]string, 0, 20)
	for i := range 10 {
		dir := fmt.Sprintf("p%d", i)
		require.NoError(t, a.Send(actor.Load(dir, actor.SourceScan)))
		require.NoError(t, a.Send(actor.Unload(dir, actor.SourceScan)))
		want = append(want, "load "+dir, "unload "+dir)
	}
	runUntilDrained(t, a)

	assert.Equal(t, want, target.Calls())
	assert.Empty(t, a.Snapshot())
}

func TestActor_ConcurrentSendersAllProcessed(t *testing.T) {
	const senders, each = 6, 50
	target := newFakeTarget()
	a := actor.New(target)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	var wg sync.WaitGroup
	for s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				assert.NoError(t, a.Send(actor.Load(fmt.Sprintf("s%d-%d", s, i), actor.SourceControl)))
			}
		}()
	}
	wg.Wait()
	a.Close()
	require.NoError(t, <-runDone)
	cancel()

	assert.Len(t, target.Calls(), senders*each)
	assert.Len(t, a.Snapshot(), senders*each)
}

func TestActor_ErrorsDoNotStopTheLoop(t *testing.T) {
	target := newFakeTarget()
	target.fail["bad"] = plugin.ErrManifestMissing("bad/config.json", errors.New("gone"))
	rec := &fakeRecorder{}
	a := actor.New(target, actor.WithRecorder(rec))

	require.NoError(t, a.Send(actor.Load("bad", actor.SourceScan)))
	require.NoError(t, a.Send(actor.Unload("ghost", actor.SourceControl)))
	require.NoError(t, a.Send(actor.Load("good", actor.SourceWatch)))
	runUntilDrained(t, a)

	assert.Equal(t, []string{"load bad", "unload ghost", "load good"}, target.Calls())
	assert.Equal(t, []string{"load/scan/error", "unload/control/error", "load/watch/ok"}, rec.done)
	assert.Equal(t, []string{plugin.CodeManifestMissing}, rec.failures)
	assert.Equal(t, 1, rec.loaded)
}

func TestActor_HooksRunInsideTheActor(t *testing.T) {
	target := newFakeTarget()
	var stopCtxErr error
	a := actor.New(target,
		actor.WithPrime(func(context.Context) error {
			target.record("prime")
			return nil
		}),
		actor.WithOnStop(func(ctx context.Context) error {
			stopCtxErr = ctx.Err()
			target.record("stop")
			return errors.New("logged, not returned")
		}),
	)

	require.NoError(t, a.Send(actor.Load("x", actor.SourceScan)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(target.Calls()) >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"prime", "load x", "stop"}, target.Calls())
	assert.NoError(t, stopCtxErr, "stop hook must get a live context")
}

func TestActor_CancellationAbandonsQueuedCommands(t *testing.T) {
	target := newFakeTarget()
	target.block = make(chan struct{})
	target.began = make(chan struct{}, 3)
	a := actor.New(target)

	for _, dir := range []string{"a", "b", "c"} {
		require.NoError(t, a.Send(actor.Load(dir, actor.SourceScan)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-target.began
	cancel()
	close(target.block)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"load a"}, target.Calls(), "in-flight command finishes, queued ones are dropped")
	assert.Equal(t, 2, a.Pending())
}

func TestActor_RunTwiceFails(t *testing.T) {
	started := make(chan struct{})
	a := actor.New(newFakeTarget(), actor.WithPrime(func(context.Context) error {
		close(started)
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-started
	assert.Error(t, a.Run(ctx))

	cancel()
	require.NoError(t, <-done)
}

func TestActor_SendAfterCloseFails(t *testing.T) {
	a := actor.New(newFakeTarget())
	a.Close()
	err := a.Send(actor.Load("late", actor.SourceControl))
	assert.ErrorIs(t, err, actor.ErrQueueClosed)
}

func TestCommand(t *testing.T) {
	load := actor.Load("/plugins/hello", actor.SourceWatch)
	unload := actor.Unload("hello", actor.SourceWatch)

	assert.Equal(t, actor.KindLoad, load.Kind)
	assert.Equal(t, "/plugins/hello", load.Target())
	assert.Equal(t, "hello", unload.Target())
	assert.Equal(t, "unload", unload.Kind.String())
	assert.Equal(t, "unknown", actor.Kind(0).String())
	assert.Negative(t, load.ID.Compare(unload.ID), "ids increase in issue order")
	assert.Contains(t, load.LogAttrs(), "watch")
}
