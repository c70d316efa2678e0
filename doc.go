// Package srv supervises the long-running processes of a local development
// environment. Services are declared as named specs (a shell command,
// working directory, optional virtual environment, and startup delay); the
// Supervisor starts, stops, and reports on the corresponding OS processes.
//
// The core functionality centers around the Supervisor type:
//
//	sup, err := srv.New(specs, srv.WithGracePeriod(5*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start a single service
//	err = sup.StartOne(ctx, "web")
//
//	// Get its status
//	proc, err := sup.Status("web")
//	fmt.Printf("state: %v, pid: %d\n", proc.State, proc.PID)
//
// # Lifecycle
//
// Each service moves through Starting → Running → Stopping → Stopped, with
// Failed reachable from Starting (spawn error) and Running (unexpected
// exit). Stop is two-phase: SIGTERM to the child's process group, a bounded
// grace period, then SIGKILL. Children are placed in their own process
// group so shell-spawned subprocesses are terminated together.
//
// # Batch operations
//
// StartAll launches services in declared order, honoring each spec's
// relative delay, and tolerates partial failure: one broken service never
// blocks the rest. StopAll stops every live service concurrently. Both
// return per-service outcomes plus a MultiError aggregate.
//
// # Reattachment
//
// With WithStateFile, the Supervisor persists a snapshot of live processes
// after every mutation and adopts still-running ones on construction, so
// one-shot CLI invocations can stop what an earlier invocation started.
//
// # Design Philosophy
//
// This library prioritizes:
//
//   - An explicit registry object instead of ambient global process state
//   - Typed errors distinguishing config, environment, and launch failures
//   - Context-aware operations with bounded shutdown
//   - Partial-failure tolerance for batch operations
package srv
