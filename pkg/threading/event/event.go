// Package event provides a binary signal that goroutines can block on.
//
// An Event is either auto-reset, where each Set releases exactly one waiter
// and clears itself, or manual-reset, where Set releases every waiter and
// the event stays signalled until Reset.
package event

import (
	"context"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
)

// Mode selects the reset policy of an Event.
type Mode int

const (
	// AutoReset clears the signal as soon as one waiter observes it.
	AutoReset Mode = iota
	// ManualReset keeps the signal until Reset is called.
	ManualReset
)

func (m Mode) String() string {
	switch m {
	case AutoReset:
		return "auto-reset"
	case ManualReset:
		return "manual-reset"
	default:
		return "unknown"
	}
}

// Event is a binary signal. The zero value is not usable; use New.
type Event struct {
	mu       sync.Mutex
	mode     Mode
	signaled bool
	waiters  []chan struct{}
}

// New creates an unsignalled event with the given reset mode.
func New(mode Mode) *Event {
	return &Event{mode: mode}
}

// Mode returns the reset policy.
func (e *Event) Mode() Mode {
	return e.mode
}

// Set signals the event. An auto-reset event hands the signal to the
// oldest waiter, or stores it if nobody waits. A manual-reset event
// releases all waiters and stays signalled.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == AutoReset {
		if len(e.waiters) > 0 {
			w := e.waiters[0]
			e.waiters[0] = nil
			e.waiters = e.waiters[1:]
			close(w)
			return
		}
		e.signaled = true
		return
	}

	e.signaled = true
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil
}

// Reset clears the signal.
func (e *Event) Reset() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}

// IsSet reports whether the event is currently signalled.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Wait blocks until the event is signalled.
func (e *Event) Wait() {
	_ = e.wait(context.Background(), nil)
}

// WaitTimeout blocks until the event is signalled or d elapses, in which
// case it returns errors.ErrTimeout.
func (e *Event) WaitTimeout(d time.Duration) error {
	if !e.TryWait(d) {
		return gferrors.ErrTimeout
	}
	return nil
}

// TryWait blocks until the event is signalled or d elapses. It reports
// whether the signal was observed.
func (e *Event) TryWait(d time.Duration) bool {
	if d <= 0 {
		return e.poll()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	return e.wait(context.Background(), timer.C) == nil
}

// WaitContext blocks until the event is signalled or ctx is done.
func (e *Event) WaitContext(ctx context.Context) error {
	return e.wait(ctx, nil)
}

func (e *Event) poll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return false
	}
	if e.mode == AutoReset {
		e.signaled = false
	}
	return true
}

func (e *Event) wait(ctx context.Context, expired <-chan time.Time) error {
	e.mu.Lock()
	if e.signaled {
		if e.mode == AutoReset {
			e.signaled = false
		}
		e.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-expired:
		if e.abandon(w) {
			return gferrors.ErrTimeout
		}
		return nil
	case <-ctx.Done():
		if e.abandon(w) {
			return ctx.Err()
		}
		return nil
	}
}

// abandon removes w from the waiter list. It returns false when a Set
// already handed the signal to w, in which case the wait succeeded.
func (e *Event) abandon(w chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, other := range e.waiters {
		if other == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return true
		}
	}
	return false
}
