// Package sync compiles the resolved inventory into the boot tree and web
// tree served to installing hosts, and drives the service managers.
//
// A full sync runs in phases:
//   - PRE: fire the sync/pre hooks
//   - CLEAN: empty the generated directories
//   - COPY: copy every distro's kernel and initrd
//   - RENDER: descriptors, answer files and boot configs for distros, then
//     images, then profiles, then systems
//   - MANAGERS: rewrite and restart DHCP, DNS and TFTP
//   - POST: fire the sync/post and change hooks
//
// A failure for one item is recorded in the Report and the run continues;
// only an unusable output tree or a manager that cannot write its
// configuration fails the sync.
//
// Incremental updates (AddItem, RemoveItem) regenerate only what the item
// and the items below it produce, and leave the output tree as a full sync
// would have left it for that subset.
package sync

import (
	"fmt"
	stdsync "sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/managers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/hashicorp/go-multierror"
)

// Report describes one sync run.
type Report struct {
	OperationID string
	Mode        string
	Started     time.Time
	Duration    time.Duration

	Attempted map[inventory.Kind]int
	Failed    map[inventory.Kind]int
	Written   int
	Unchanged int
	Removed   int

	Artifacts     []*prov_err.ArtifactError
	Managers      []managers.OperationResult
	ManagerErrors []error

	mu stdsync.Mutex
}

func newReport(id, mode string) *Report {
	return &Report{
		OperationID: id,
		Mode:        mode,
		Started:     time.Now(),
		Attempted:   make(map[inventory.Kind]int),
		Failed:      make(map[inventory.Kind]int),
	}
}

func (r *Report) attempt(kind inventory.Kind) {
	r.mu.Lock()
	r.Attempted[kind]++
	r.mu.Unlock()
}

// fail records an artifact failure, counting each item once.
func (r *Report) fail(kind inventory.Kind, ae *prov_err.ArtifactError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prev := range r.Artifacts {
		if prev.Kind == ae.Kind && prev.Name == ae.Name {
			r.Artifacts = append(r.Artifacts, ae)
			return
		}
	}
	r.Failed[kind]++
	r.Artifacts = append(r.Artifacts, ae)
	metrics.ArtifactsTotal.WithLabelValues(string(kind), "failed").Inc()
}

// note records a failure that belongs to no single item.
func (r *Report) note(ae *prov_err.ArtifactError) {
	r.mu.Lock()
	r.Artifacts = append(r.Artifacts, ae)
	r.mu.Unlock()
}

func (r *Report) wrote(kind string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if changed {
		r.Written++
		metrics.ArtifactsTotal.WithLabelValues(kind, "written").Inc()
		return
	}
	r.Unchanged++
	metrics.ArtifactsTotal.WithLabelValues(kind, "unchanged").Inc()
}

func (r *Report) removed() {
	r.mu.Lock()
	r.Removed++
	r.mu.Unlock()
}

func (r *Report) managerResults(results []managers.OperationResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Managers = append(r.Managers, results...)
	if err == nil {
		return
	}
	if me, ok := err.(*multierror.Error); ok {
		r.ManagerErrors = append(r.ManagerErrors, me.Errors...)
		return
	}
	r.ManagerErrors = append(r.ManagerErrors, err)
}

// Err combines every artifact and manager failure, or returns nil.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs *multierror.Error
	for _, ae := range r.Artifacts {
		errs = multierror.Append(errs, ae)
	}
	for _, me := range r.ManagerErrors {
		errs = multierror.Append(errs, me)
	}
	return errs.ErrorOrNil()
}

// Summary is a one-line account such as "1 of 7 items failed".
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempted, failed := 0, 0
	for _, n := range r.Attempted {
		attempted += n
	}
	for _, n := range r.Failed {
		failed += n
	}
	return fmt.Sprintf("%d of %d items failed, %d files written, %d unchanged, %d removed, %d manager errors",
		failed, attempted, r.Written, r.Unchanged, r.Removed, len(r.ManagerErrors))
}
