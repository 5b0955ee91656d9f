package benchmark

import (
	"sync"
	"testing"

	"github.com/vnykmshr/gofun/pkg/notification"
	"github.com/vnykmshr/gofun/pkg/notification/priorityqueue"
	"github.com/vnykmshr/gofun/pkg/notification/queue"
)

type stopNote struct{}

func (stopNote) Name() string { return "stop" }

// BenchmarkQueueHandoff measures enqueue to a single blocked consumer.
func BenchmarkQueueHandoff(b *testing.B) {
	q := queue.New()
	n := notification.New("bench")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := q.WaitDequeue().(stopNote); ok {
				return
			}
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(n)
	}
	b.StopTimer()

	q.Enqueue(stopNote{})
	<-done
}

// BenchmarkChannelHandoff is the buffered channel equivalent of
// BenchmarkQueueHandoff.
func BenchmarkChannelHandoff(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(sizeLabel(size), func(b *testing.B) {
			ch := make(chan notification.Notification, size)
			n := notification.New("bench")

			done := make(chan struct{})
			go func() {
				defer close(done)
				for range ch {
				}
			}()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ch <- n
			}
			b.StopTimer()

			close(ch)
			<-done
		})
	}
}

// BenchmarkQueueContention measures the queue under concurrent producers
// and consumers.
func BenchmarkQueueContention(b *testing.B) {
	for _, producers := range []int{2, 4, 8, 16} {
		b.Run(contentionLabel(producers), func(b *testing.B) {
			q := queue.New()
			n := notification.New("bench")

			consumers := producers / 2
			var consumerWg sync.WaitGroup
			consumerWg.Add(consumers)
			for i := 0; i < consumers; i++ {
				go func() {
					defer consumerWg.Done()
					for {
						if _, ok := q.WaitDequeue().(stopNote); ok {
							return
						}
					}
				}()
			}

			b.ReportAllocs()
			b.ResetTimer()

			var producerWg sync.WaitGroup
			perProducer := b.N / producers
			producerWg.Add(producers)
			for p := 0; p < producers; p++ {
				go func() {
					defer producerWg.Done()
					for i := 0; i < perProducer; i++ {
						q.Enqueue(n)
					}
				}()
			}

			producerWg.Wait()
			b.StopTimer()

			for i := 0; i < consumers; i++ {
				q.Enqueue(stopNote{})
			}
			consumerWg.Wait()
		})
	}
}

// BenchmarkPriorityQueue measures enqueue and dequeue with mixed
// priorities.
func BenchmarkPriorityQueue(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(sizeLabel(size), func(b *testing.B) {
			q := priorityqueue.New()
			n := notification.New("bench")

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < size; j++ {
					q.Enqueue(n, (j*7)%size)
				}
				for q.Dequeue() != nil {
				}
			}
		})
	}
}
