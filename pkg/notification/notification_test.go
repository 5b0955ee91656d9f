package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasic(t *testing.T) {
	n := New("ping")
	assert.Equal(t, "ping", n.Name())
	assert.Equal(t, "ping", NameOf(n))
	assert.Equal(t, "<nil>", NameOf(nil))
}

func TestValue(t *testing.T) {
	type payload struct{ ID int }

	var n Notification = NewValue("job", payload{ID: 7})
	assert.Equal(t, "job", n.Name())

	v, ok := n.(*Value[payload])
	if assert.True(t, ok) {
		assert.Equal(t, 7, v.Value().ID)
	}

	_, ok = n.(*Value[string])
	assert.False(t, ok)

	p, ok := n.(Payloader)
	if assert.True(t, ok) {
		assert.Equal(t, payload{ID: 7}, p.Payload())
	}
}
