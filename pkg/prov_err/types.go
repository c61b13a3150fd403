// pkg/prov_err/types.go

package prov_err

import (
	"fmt"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// ValidationError rejects an item or setting before anything is mutated.
type ValidationError struct {
	Kind   string
	Name   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid ")
	if e.Kind != "" {
		sb.WriteString(e.Kind)
		sb.WriteString(" ")
	}
	if e.Name != "" {
		fmt.Fprintf(&sb, "%q ", e.Name)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, "field %s ", e.Field)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	return sb.String()
}

func (e *ValidationError) Category() ErrorCategory { return CategoryValidation }

// NewValidationError creates an error for input validation failures
func NewValidationError(kind, name, field, reason string, args ...interface{}) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return cerr.WithStack(&ValidationError{Kind: kind, Name: name, Field: field, Reason: reason})
}

// ReferentialIntegrityError is returned when a removal would orphan
// dependents or an edit would point at an item that does not exist.
type ReferentialIntegrityError struct {
	Kind       string
	Name       string
	Dependents []string
	Reason     string
}

func (e *ReferentialIntegrityError) Error() string {
	if len(e.Dependents) > 0 {
		return fmt.Sprintf("%s %q still referenced by %s", e.Kind, e.Name, strings.Join(e.Dependents, ", "))
	}
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Reason)
}

func (e *ReferentialIntegrityError) Category() ErrorCategory { return CategoryIntegrity }

// NewIntegrityError creates an error naming the dependents that block an operation.
func NewIntegrityError(kind, name string, dependents []string) error {
	return cerr.WithStack(&ReferentialIntegrityError{Kind: kind, Name: name, Dependents: dependents})
}

// NewDanglingRefError creates an error for a reference to a missing item.
func NewDanglingRefError(kind, name, reason string, args ...interface{}) error {
	return cerr.WithStack(&ReferentialIntegrityError{Kind: kind, Name: name, Reason: fmt.Sprintf(reason, args...)})
}

// ArtifactError records one item whose outputs could not be produced. A sync
// keeps going when it sees one.
type ArtifactError struct {
	Kind  string
	Name  string
	Path  string
	Cause error
}

func (e *ArtifactError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q: artifact %s: %v", e.Kind, e.Name, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Name, e.Cause)
}

func (e *ArtifactError) Unwrap() error           { return e.Cause }
func (e *ArtifactError) Category() ErrorCategory { return CategoryArtifact }

// NewArtifactError wraps cause as the artifact failure of one item.
func NewArtifactError(kind, name, path string, cause error) *ArtifactError {
	return &ArtifactError{Kind: kind, Name: name, Path: path, Cause: cause}
}

// ManagerError is returned by a service manager that failed to write its
// configuration or restart its daemon.
type ManagerError struct {
	Manager string
	Op      string
	Code    int
	Cause   error
}

func (e *ManagerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("manager %s: %s exited %d: %v", e.Manager, e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("manager %s: %s: %v", e.Manager, e.Op, e.Cause)
}

func (e *ManagerError) Unwrap() error           { return e.Cause }
func (e *ManagerError) Category() ErrorCategory { return CategoryManager }

// NewManagerError wraps cause as a failure of op in the named manager.
func NewManagerError(manager, op string, cause error) error {
	return &ManagerError{Manager: manager, Op: op, Cause: cause}
}

// FatalEnvironmentError aborts the operation in progress.
type FatalEnvironmentError struct {
	ClassifiedError
}

func (e *FatalEnvironmentError) Unwrap() error { return e.Cause }

// IsValidation reports whether err contains a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return cerr.As(err, &v)
}

// IsReferentialIntegrity reports whether err contains a ReferentialIntegrityError.
func IsReferentialIntegrity(err error) bool {
	var r *ReferentialIntegrityError
	return cerr.As(err, &r)
}

// IsArtifact reports whether err contains an ArtifactError.
func IsArtifact(err error) bool {
	var a *ArtifactError
	return cerr.As(err, &a)
}

// IsManager reports whether err contains a ManagerError.
func IsManager(err error) bool {
	var m *ManagerError
	return cerr.As(err, &m)
}

// IsFatal reports whether err contains a FatalEnvironmentError.
func IsFatal(err error) bool {
	var f *FatalEnvironmentError
	return cerr.As(err, &f)
}
