package center

import (
	"fmt"
	"reflect"

	"github.com/vnykmshr/gofun/pkg/notification"
)

// Observer receives notifications posted to a Center.
type Observer interface {
	// Key identifies the registration. Two observers with equal keys are
	// the same registration for RemoveObserver and HasObserver.
	Key() any

	// Accepts reports whether Notify should be called for n.
	Accepts(n notification.Notification) bool

	// Notify handles n. A non-nil error stops delivery of n to the
	// observers registered after this one and is returned by Post.
	Notify(n notification.Notification) error
}

type observerKey struct {
	owner any
	fn    uintptr
	typ   reflect.Type
}

type typedObserver[N notification.Notification] struct {
	key    observerKey
	fn     func(N) error
	filter func(N) bool
}

// NewObserver returns an observer that calls fn for every notification
// whose dynamic type is N. The registration is identified by owner and fn
// together, so passing the same method value of the same receiver twice
// yields equal keys. owner must be a non-nil comparable value, normally a
// pointer.
func NewObserver[N notification.Notification](owner any, fn func(N) error) Observer {
	return newTyped(owner, fn, nil)
}

// NewFilterObserver is like NewObserver but additionally requires filter to
// accept the notification.
func NewFilterObserver[N notification.Notification](owner any, fn func(N) error, filter func(N) bool) Observer {
	return newTyped(owner, fn, filter)
}

func newTyped[N notification.Notification](owner any, fn func(N) error, filter func(N) bool) *typedObserver[N] {
	if owner == nil {
		panic("center: nil observer owner")
	}
	if !reflect.TypeOf(owner).Comparable() {
		panic(fmt.Sprintf("center: observer owner of type %T is not comparable", owner))
	}
	if fn == nil {
		panic("center: nil observer callback")
	}
	return &typedObserver[N]{
		key: observerKey{
			owner: owner,
			fn:    reflect.ValueOf(fn).Pointer(),
			typ:   reflect.TypeFor[N](),
		},
		fn:     fn,
		filter: filter,
	}
}

func (o *typedObserver[N]) Key() any {
	return o.key
}

func (o *typedObserver[N]) Accepts(n notification.Notification) bool {
	typed, ok := n.(N)
	if !ok {
		return false
	}
	return o.filter == nil || o.filter(typed)
}

func (o *typedObserver[N]) Notify(n notification.Notification) error {
	typed, ok := n.(N)
	if !ok {
		return nil
	}
	return o.fn(typed)
}
