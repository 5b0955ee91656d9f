package queue

import (
	"testing"

	"github.com/vnykmshr/gofun/pkg/notification"
)

func BenchmarkEnqueueDequeue(b *testing.B) {
	q := New()
	n := notification.New("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(n)
		q.Dequeue()
	}
}

func BenchmarkHandoff(b *testing.B) {
	q := New()
	n := notification.New("bench")

	stop := notification.New("stop")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for q.WaitDequeue() != stop {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(n)
	}
	q.Enqueue(stop)
	<-done
}
