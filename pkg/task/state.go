package task

// State is the lifecycle stage of a Task.
type State int32

const (
	// StateIdle is a task that has not been started.
	StateIdle State = iota
	// StateStarting is a task handed to a Manager but not yet running.
	StateStarting
	// StateRunning is a task whose body is executing.
	StateRunning
	// StateCancelling is a task asked to stop. Its body may still run.
	StateCancelling
	// StateFinished is terminal.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
