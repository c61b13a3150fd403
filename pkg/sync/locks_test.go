package sync

import (
	"context"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acquire takes a lock in the background and hands over its release.
func acquire(fn func() func()) <-chan func() {
	ch := make(chan func(), 1)
	go func() { ch <- fn() }()
	return ch
}

func waitRelease(t *testing.T, ch <-chan func(), within time.Duration) func() {
	t.Helper()
	select {
	case release := <-ch:
		return release
	case <-time.After(within):
		t.Fatal("lock was not acquired in time")
		return nil
	}
}

func assertBlocked(t *testing.T, ch <-chan func()) {
	t.Helper()
	select {
	case release := <-ch:
		release()
		t.Fatal("lock was acquired while it should be held elsewhere")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocksDisjointSubtreesRunTogether(t *testing.T) {
	l := NewLocks()
	a := l.Subtree("distro/d1")
	ch := acquire(func() func() { return l.Subtree("distro/d2") })
	b := waitRelease(t, ch, time.Second)
	assert.Equal(t, 2, l.held())
	a()
	b()
	assert.Zero(t, l.held())
}

func TestLocksSameSubtreeQueues(t *testing.T) {
	l := NewLocks()
	a := l.Subtree("distro/d1")
	ch := acquire(func() func() { return l.Subtree("distro/d1") })
	assertBlocked(t, ch)
	a()
	waitRelease(t, ch, time.Second)()
	assert.Zero(t, l.held())
}

func TestLocksFullExcludesEverything(t *testing.T) {
	l := NewLocks()
	full := l.Full()
	ch := acquire(func() func() { return l.Subtree("distro/d1") })
	assertBlocked(t, ch)
	full()
	sub := waitRelease(t, ch, time.Second)

	ch = acquire(l.Full)
	assertBlocked(t, ch)
	sub()
	waitRelease(t, ch, time.Second)()
}

func TestSystemLocksItsDistroSubtree(t *testing.T) {
	f := newFixture(t)
	web01 := f.graph.Systems().Find("web01")
	d1 := f.graph.Distros().Find("d1")

	hold := f.compiler.lockFor(d1)
	ch := acquire(func() func() { return f.compiler.lockFor(web01) })
	assertBlocked(t, ch)
	other := waitRelease(t, acquire(func() func() { return f.compiler.lockFor(f.graph.Systems().Find("db01")) }), time.Second)
	other()
	hold()
	waitRelease(t, ch, time.Second)()
}

func TestOrphanedRemoveWaitsForSubtreeWork(t *testing.T) {
	f := newFixture(t)
	f.fullSync(t)
	web01 := f.graph.Systems().Find("web01")

	// an AddItem on d1 is in flight while a recursive remove takes the
	// whole chain away and then notifies web01
	hold := f.compiler.lockFor(f.graph.Distros().Find("d1"))
	require.NoError(t, f.graph.Distros().Remove(context.Background(), "d1", true))

	done := make(chan error, 1)
	go func() {
		_, err := f.compiler.RemoveItem(context.Background(), web01)
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("removal ran while the subtree was busy: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	testutil.AssertFileExists(t, f.tftp("pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))

	hold()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("removal did not finish")
	}
	testutil.AssertFileNotExists(t, f.tftp("pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))
	assert.Zero(t, f.compiler.locks.held())
}
