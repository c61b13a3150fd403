package triggers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeScript(t *testing.T, dir, name, body string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), perm))
}

func TestFireRunsScriptsInOrder(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	classDir := filepath.Join(root, "sync", "post")

	writeScript(t, classDir, "20-second", `echo "second $1" >> `+out, 0o755)
	writeScript(t, classDir, "10-first", `echo "first $1" >> `+out, 0o755)
	writeScript(t, classDir, "15-broken", "exit 3", 0o755)
	writeScript(t, classDir, "30-not-executable", `echo never >> `+out, 0o644)
	writeScript(t, classDir, ".hidden", `echo never >> `+out, 0o755)

	bus := New(root, 5*time.Second, zaptest.NewLogger(t))
	scripts, err := bus.Scripts(ClassPostSync)
	require.NoError(t, err)
	require.Len(t, scripts, 3)

	err = bus.Fire(context.Background(), ClassPostSync, "arg")
	require.Error(t, err, "the failing hook is reported")
	assert.Contains(t, err.Error(), "15-broken")

	b, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "first arg\nsecond arg\n", string(b), "later hooks run after a failure")
}

func TestFireInProcessHooks(t *testing.T) {
	bus := New("", time.Second, zaptest.NewLogger(t))
	var order []string
	bus.Register(ClassChange, "b", func(_ context.Context, args []string) error {
		order = append(order, "b:"+strings.Join(args, ","))
		return nil
	})
	bus.Register(ClassChange, "a", func(_ context.Context, _ []string) error {
		order = append(order, "a")
		return cerr.New("boom")
	})

	err := bus.Fire(context.Background(), ClassChange, "x", "y")
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b:x,y"}, order)

	bus.Register(ClassChange, "a", func(context.Context, []string) error { return nil })
	order = nil
	require.NoError(t, bus.Fire(context.Background(), ClassChange))
	assert.Equal(t, []string{"b:"}, order, "re-registering replaces the hook")
}

func TestFireHookTimeout(t *testing.T) {
	bus := New("", 50*time.Millisecond, zaptest.NewLogger(t))
	ran := false
	stopped := make(chan error, 1)
	bus.Register(ClassPreSync, "slow", func(ctx context.Context, _ []string) error {
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	})
	bus.Register(ClassPreSync, "z-after", func(context.Context, []string) error {
		ran = true
		return nil
	})
	err := bus.Fire(context.Background(), ClassPreSync)
	require.Error(t, err)
	assert.True(t, ran)

	// the abandoned hook sees its deadline and can wind down
	select {
	case herr := <-stopped:
		assert.ErrorIs(t, herr, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("slow hook was never cancelled")
	}
}

func TestFireHookPanicIsContained(t *testing.T) {
	bus := New("", time.Second, zaptest.NewLogger(t))
	bus.Register(ClassChange, "panics", func(context.Context, []string) error { panic("bad hook") })
	err := bus.Fire(context.Background(), ClassChange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestFireWithoutHooks(t *testing.T) {
	bus := New(t.TempDir(), time.Second, zaptest.NewLogger(t))
	assert.NoError(t, bus.Fire(context.Background(), "nothing/here"))
	_, err := bus.Scripts("../escape")
	assert.Error(t, err)
}

func TestObserverFiresKindHooks(t *testing.T) {
	bus := New("", time.Second, zaptest.NewLogger(t))
	var fired []string
	record := func(class string) Hook {
		return func(_ context.Context, args []string) error {
			fired = append(fired, class+" "+strings.Join(args, ","))
			return cerr.New("ignored")
		}
	}
	bus.Register(AddPost(inventory.KindSystem), "rec", record(AddPost(inventory.KindSystem)))
	bus.Register(DeletePost(inventory.KindSystem), "rec", record(DeletePost(inventory.KindSystem)))

	obs := Observer{Bus: bus}
	sys := inventory.NewSystem("web01")
	require.NoError(t, obs.ItemSaved(context.Background(), sys, nil))
	require.NoError(t, obs.ItemRemoved(context.Background(), sys))
	assert.Equal(t, []string{"add/system/post web01", "delete/system/post web01"}, fired)
}
