package dispatcher_test

import (
	"fmt"

	"github.com/vnykmshr/gofun/pkg/active/async"
	"github.com/vnykmshr/gofun/pkg/active/dispatcher"
)

// counter is an active object. Its methods are serialized on one thread,
// so it needs no locking of its own.
type counter struct {
	n   int
	add *async.Method[int, int]
}

func newCounter(d *dispatcher.Dispatcher) *counter {
	c := &counter{}
	c.add = async.NewMethod(func(delta int) (int, error) {
		c.n += delta
		return c.n, nil
	}, async.WithStarter(d))
	return c
}

func Example() {
	d, err := dispatcher.New(dispatcher.WithName("counter"))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Stop()

	c := newCounter(d)
	var last *async.Result[int]
	for i := 0; i < 10; i++ {
		last, _ = c.add.Call(1)
	}

	total, _ := last.Get()
	fmt.Println("total:", total)

	// Output: total: 10
}
