package srv

import (
	"errors"
	"fmt"
)

// Common errors returned by supervisor operations
var (
	// ErrAlreadyRunning indicates a start was requested for a service
	// that already has a live process
	ErrAlreadyRunning = errors.New("srv: service already running")

	// ErrNotRunning indicates a stop was requested for a service with no
	// live process
	ErrNotRunning = errors.New("srv: service not running")

	// ErrNotFound indicates the service name is not known to the
	// supervisor or the registry
	ErrNotFound = errors.New("srv: unknown service")
)

// ConfigError reports an invalid or unusable service definition: missing
// fields, a duplicate name, or a working directory that does not exist.
type ConfigError struct {
	// Service is the service the definition belongs to
	Service string
	// Reason describes what is wrong with the definition
	Reason string
	// Err is the underlying error, if any
	Err error
}

// Error returns a formatted error message
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("srv: config %q: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("srv: config %q: %s", e.Service, e.Reason)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EnvironmentError reports a virtual environment whose executable directory
// is missing; the service is not launched without its isolation.
type EnvironmentError struct {
	// Service is the service the venv belongs to
	Service string
	// Path is the missing executable directory
	Path string
}

// Error returns a formatted error message
func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("srv: venv for %q: %s: no such directory", e.Service, e.Path)
}

// LaunchError reports that the OS failed to spawn the child process
type LaunchError struct {
	// Service is the service that failed to launch
	Service string
	// Err is the underlying OS error
	Err error
}

// Error returns a formatted error message
func (e *LaunchError) Error() string {
	return fmt.Sprintf("srv: launching %q: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// OpError represents an error from a supervisor operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Service is the service name involved in the operation
	Service string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("srv: %s %q: %v", e.Op.String(), e.Service, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from batch operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
