package srv

import (
	"strings"
	"time"
)

// ServiceSpec is the immutable description of one manageable service.
// Specs are produced by the configuration loader and consumed read-only by
// the Supervisor.
type ServiceSpec struct {
	// Name uniquely identifies the service
	Name string

	// Command is the shell command line to execute. It is split with
	// shell-word semantics: whitespace separates tokens except inside
	// single or double quotes, and quote characters are stripped.
	Command string

	// Directory is the working directory for the child process; empty
	// means the current directory. Must exist at resolve time.
	Directory string

	// Delay is how long a batch start waits before launching this
	// service, relative to the previous service's start returning
	Delay time.Duration

	// Venv is an optional virtual-environment root. When set, its bin
	// directory is prepended to the child's PATH and VIRTUAL_ENV is set
	// to the root. A missing venv fails the resolve rather than
	// launching without isolation.
	Venv string

	// Env holds extra environment variables overlaid on the inherited
	// environment (and on the venv injection)
	Env map[string]string

	// LogDir, when set, redirects the child's stdout and stderr to
	// <LogDir>/<Name>.log instead of inheriting the parent's streams
	LogDir string
}

// Validate checks the fields that can be judged without touching the
// filesystem; Resolve performs the directory and venv existence checks.
func (s ServiceSpec) Validate() error {
	if s.Name == "" {
		return &ConfigError{Service: s.Name, Reason: "service name is required"}
	}
	if strings.TrimSpace(s.Command) == "" {
		return &ConfigError{Service: s.Name, Reason: "command is required"}
	}
	if s.Delay < 0 {
		return &ConfigError{Service: s.Name, Reason: "delay must be non-negative"}
	}
	return nil
}
