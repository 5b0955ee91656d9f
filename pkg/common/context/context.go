// Package context holds small context helpers shared by the blocking
// operations of the runtime.
package context

import (
	"context"
	"time"
)

// WithTimeoutOrCancel creates a context that is canceled either when the parent
// is canceled or when the timeout duration elapses, whichever comes first.
// A non-positive timeout means no deadline.
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}

// Sleep pauses for d or until ctx is done. It returns false when the
// context ended the sleep early.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !IsCanceled(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
