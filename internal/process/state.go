package process

import "time"

// State represents the lifecycle state of a subprocess.
type State string

// Process states.
const (
	StateStarting State = "starting" // Spawned, not yet confirmed
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Stop requested
	StateExited   State = "exited"   // Exited cleanly or after Stop
	StateError    State = "error"    // Exited on its own with a failure
)

// Info is a snapshot of a subprocess.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitCode  int
	LastError error
}
