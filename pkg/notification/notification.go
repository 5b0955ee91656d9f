// Package notification defines the message type carried by the queues and
// the notification center.
//
// A Notification is immutable once constructed and may be shared freely
// between goroutines. Concrete notifications are ordinary Go types; the
// center and the queues dispatch on the dynamic type.
package notification

// Notification is a message posted to a center or placed on a queue.
type Notification interface {
	// Name identifies the kind of notification, mostly for logs and metrics.
	Name() string
}

// Basic is a notification that carries nothing but its name.
type Basic struct {
	name string
}

// New returns a notification with the given name.
func New(name string) *Basic {
	return &Basic{name: name}
}

// Name implements Notification.
func (b *Basic) Name() string {
	return b.name
}

// Value is a named notification carrying an arbitrary payload.
type Value[T any] struct {
	name  string
	value T
}

// NewValue returns a notification carrying v.
func NewValue[T any](name string, v T) *Value[T] {
	return &Value[T]{name: name, value: v}
}

// Name implements Notification.
func (v *Value[T]) Name() string {
	return v.name
}

// Value returns the payload.
func (v *Value[T]) Value() T {
	return v.value
}

// Payload returns the payload as an untyped value.
func (v *Value[T]) Payload() any {
	return v.value
}

// Payloader is implemented by notifications whose data is carried
// separately from the notification itself, such as Value. Encoders that
// ship notifications elsewhere serialize Payload() instead of the
// notification.
type Payloader interface {
	Payload() any
}

// NameOf returns n.Name(), or "<nil>" for a nil notification.
func NameOf(n Notification) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name()
}
