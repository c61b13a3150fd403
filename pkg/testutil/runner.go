package testutil

import (
	"context"
	"sync"

	cerr "github.com/cockroachdb/errors"
)

// FakeRunner stands in for systemctl and the daemons' config checkers. Each
// call is recorded as "<op>:<unit or command>".
type FakeRunner struct {
	mu    sync.Mutex
	calls []string

	// Fail makes every call naming this unit or command fail.
	Fail string
}

func (f *FakeRunner) record(op, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+unit)
	if f.Fail != "" && unit == f.Fail {
		return cerr.Newf("%s failed", unit)
	}
	return nil
}

func (f *FakeRunner) Restart(_ context.Context, unit string) error { return f.record("restart", unit) }
func (f *FakeRunner) Reload(_ context.Context, unit string) error  { return f.record("reload", unit) }
func (f *FakeRunner) Check(_ context.Context, command string, _ ...string) error {
	return f.record("check", command)
}

// Calls returns and clears the recorded calls.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}
