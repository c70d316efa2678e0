package srv

import "time"

// Default timing knobs for the Supervisor
const (
	// DefaultGracePeriod is how long StopOne waits after the graceful
	// termination signal before escalating to SIGKILL
	DefaultGracePeriod = 5 * time.Second

	// DefaultKillWait is how long StopOne waits for the OS to confirm
	// termination after SIGKILL
	DefaultKillWait = 2 * time.Second

	// DefaultPollInterval is the interval used when polling reattached
	// processes for liveness (they have no wait handle)
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultStopConcurrency is the maximum number of concurrent StopAll
	// operations
	DefaultStopConcurrency = 8
)

// VenvBinDir is the subdirectory of a virtual environment root that holds
// its executables and must be prepended to the child's search path
const VenvBinDir = "bin"

// VenvMarkerVar is the environment variable set to the virtual environment
// root so interpreters recognize the activated environment
const VenvMarkerVar = "VIRTUAL_ENV"

// State describes where a service is in its lifecycle.
type State int

const (
	// StateStopped means no process backs the service
	StateStopped State = iota
	// StateStarting means the launch is in flight
	StateStarting
	// StateRunning means the OS confirmed the process exists
	StateRunning
	// StateStopping means a stop was requested and termination is pending
	StateStopping
	// StateFailed means the launch failed or the process exited
	// unexpectedly; the entry stays visible until cleared
	StateFailed
)

// State string constants
const (
	stateStoppedStr  = "stopped"
	stateStartingStr = "starting"
	stateRunningStr  = "running"
	stateStoppingStr = "stopping"
	stateFailedStr   = "failed"
	stateUnknownStr  = "unknown"
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateStopped:
		return stateStoppedStr
	case StateStarting:
		return stateStartingStr
	case StateRunning:
		return stateRunningStr
	case StateStopping:
		return stateStoppingStr
	case StateFailed:
		return stateFailedStr
	default:
		return stateUnknownStr
	}
}

// Live reports whether a process is (or may still be) backing this state
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Operation represents a supervisor operation type, used in OpError
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpStart launches a service
	OpStart
	// OpStop terminates a service
	OpStop
	// OpStatus queries a single service
	OpStatus
	// OpList queries all services
	OpList
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpStatus:
		return "status"
	case OpList:
		return "list"
	default:
		return "unknown"
	}
}
