// Package parking implements the parked-waiter list shared by the blocking
// notification queues.
//
// A consumer that finds its queue empty parks a Waiter. A producer that
// finds a parked waiter hands the item to it directly instead of queuing,
// so a woken consumer never has to re-check the queue. The Lot is not
// synchronized; it is guarded by the owning queue's mutex.
package parking

import "slices"

// Waiter is one parked consumer. Its channel has room for exactly one
// delivery so the producer never blocks.
type Waiter[T any] struct {
	ch chan T
}

// C returns the channel the waiter receives its item on. A zero value
// means the waiter was woken without an item.
func (w *Waiter[T]) C() <-chan T {
	return w.ch
}

// Lot is a FIFO list of parked waiters.
type Lot[T any] struct {
	waiters []*Waiter[T]
}

// Park appends a new waiter.
func (l *Lot[T]) Park() *Waiter[T] {
	w := &Waiter[T]{ch: make(chan T, 1)}
	l.waiters = append(l.waiters, w)
	return w
}

// Len returns the number of parked waiters.
func (l *Lot[T]) Len() int {
	return len(l.waiters)
}

// Unpark hands item to the oldest waiter. It reports false when nobody is
// parked.
func (l *Lot[T]) Unpark(item T) bool {
	if len(l.waiters) == 0 {
		return false
	}
	w := l.waiters[0]
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
	w.ch <- item
	return true
}

// Remove takes w off the list. It reports false when w was already
// unparked, in which case its item is waiting in the channel.
func (l *Lot[T]) Remove(w *Waiter[T]) bool {
	i := slices.Index(l.waiters, w)
	if i < 0 {
		return false
	}
	l.waiters = slices.Delete(l.waiters, i, i+1)
	return true
}

// WakeAll unparks every waiter with the zero value.
func (l *Lot[T]) WakeAll() {
	var zero T
	for _, w := range l.waiters {
		w.ch <- zero
	}
	l.waiters = nil
}
