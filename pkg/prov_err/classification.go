// pkg/prov_err/classification.go
//
// Error classification for the provisioning core. Every failure surfaced by
// the inventory, resolver, sync compiler and service managers belongs to one
// of the categories below, each with its own exit code.

package prov_err

import (
	"fmt"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// ErrorCategory classifies errors for appropriate handling
type ErrorCategory int

const (
	// CategoryValidation - malformed item or settings (exit 2)
	CategoryValidation ErrorCategory = iota
	// CategoryIntegrity - removal or edit would break a reference (exit 2)
	CategoryIntegrity
	// CategoryArtifact - one item's outputs could not be produced (exit 1)
	CategoryArtifact
	// CategoryManager - a service manager failed to write or restart (exit 1)
	CategoryManager
	// CategoryFatal - the environment is unusable, the run aborts (exit 1)
	CategoryFatal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryIntegrity:
		return "referential_integrity"
	case CategoryArtifact:
		return "artifact"
	case CategoryManager:
		return "manager"
	case CategoryFatal:
		return "fatal_environment"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit code for the category
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation, CategoryIntegrity:
		return 2
	default:
		return 1
	}
}

// Categorized is implemented by every error type in this package.
type Categorized interface {
	error
	Category() ErrorCategory
}

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Class       ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Category reports the error category
func (e *ClassifiedError) Category() ErrorCategory {
	return e.Class
}

// GetExitCode extracts exit code from any error.
// Returns 0 for nil, the category code for classified errors, 1 for others.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	var c Categorized
	if cerr.As(err, &c) {
		return c.Category().ExitCode()
	}
	return 1
}

// CategoryOf returns the category of the outermost classified error in the
// chain and false when none is present.
func CategoryOf(err error) (ErrorCategory, bool) {
	var c Categorized
	if err != nil && cerr.As(err, &c) {
		return c.Category(), true
	}
	return 0, false
}

// Remediation collects the "how to fix" steps of every fatal error in the
// chain, outermost first.
func Remediation(err error) []string {
	var steps []string
	for err != nil {
		if f, ok := err.(*FatalEnvironmentError); ok {
			steps = append(steps, f.Remediation...)
		}
		err = cerr.UnwrapOnce(err)
	}
	return steps
}

// NewFatalError reports an environment problem that makes the run impossible.
func NewFatalError(message string, cause error, remediation ...string) error {
	return &FatalEnvironmentError{ClassifiedError{
		Class:       CategoryFatal,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}}
}

// Fatalf is NewFatalError with a formatted message and no cause.
func Fatalf(format string, args ...interface{}) error {
	return NewFatalError(fmt.Sprintf(format, args...), nil)
}
