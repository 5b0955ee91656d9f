package thread

// Runnable is a unit of work executed by a Thread or a pool thread.
type Runnable interface {
	Run()
}

// RunnableFunc adapts a plain function to the Runnable interface.
type RunnableFunc func()

// Run calls f.
func (f RunnableFunc) Run() {
	f()
}

// Priority is an advisory scheduling hint. The Go scheduler does not expose
// per-goroutine priorities, so the value is recorded and reported but never
// applied.
type Priority int

const (
	PriorityLowest Priority = iota - 2
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "highest"
	default:
		return "unknown"
	}
}
