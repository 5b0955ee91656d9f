package task

// Notification is implemented by every notification a Manager posts about
// a task.
type Notification interface {
	Name() string
	Task() *Task
}

type base struct {
	task *Task
}

// Task returns the task the notification is about.
func (b base) Task() *Task { return b.task }

// Started is posted when a task begins running.
type Started struct{ base }

// Name implements notification.Notification.
func (*Started) Name() string { return "TaskStarted" }

// Cancelled is posted when a task is asked to cancel.
type Cancelled struct{ base }

// Name implements notification.Notification.
func (*Cancelled) Name() string { return "TaskCancelled" }

// Finished is posted when a task has ended, whether it completed, failed
// or was cancelled.
type Finished struct{ base }

// Name implements notification.Notification.
func (*Finished) Name() string { return "TaskFinished" }

// Failed is posted when the task body returned an error or panicked.
type Failed struct {
	base
	Err error
}

// Name implements notification.Notification.
func (*Failed) Name() string { return "TaskFailed" }

// Progress reports a progress update between 0 and 1.
type Progress struct {
	base
	Progress float64
}

// Name implements notification.Notification.
func (*Progress) Name() string { return "TaskProgress" }

// Custom carries task-specific data posted with Task.PostNotification.
type Custom[C any] struct {
	base
	Data C
}

// NewCustom returns a custom notification about t.
func NewCustom[C any](t *Task, data C) *Custom[C] {
	return &Custom[C]{base: base{task: t}, Data: data}
}

// Name implements notification.Notification.
func (*Custom[C]) Name() string { return "TaskCustom" }

// Payload implements notification.Payloader.
func (c *Custom[C]) Payload() any { return c.Data }
