package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/reactivedomain/reactivedomain/messaging"
)

func TestQueuedHandlerProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	q := NewQueuedHandler("test", func(m QueuedMessage) {
		mu.Lock()
		order = append(order, m.(*testPing).N)
		mu.Unlock()
	})
	q.Start()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		p := newTestPing()
		p.N = i
		q.Enqueue(p)
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		done := len(order) == 5
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for all messages to process")
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("order[%d] = %d, want %d (full order: %v)", i, n, i, order)
		}
	}
}

func TestQueuedHandlerIdle(t *testing.T) {
	q := NewQueuedHandler("test", func(m QueuedMessage) {})
	if !q.Idle() {
		t.Fatalf("a freshly created queue should be idle")
	}
	q.Start()
	defer q.Stop()

	q.Enqueue(newTestPing())
	// Idle should settle back to true once the single message drains.
	deadline := time.Now().Add(time.Second)
	for !q.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("queue never returned to idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueuedHandlerPanicDoesNotKillWorker(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	q := NewQueuedHandler("test", func(m QueuedMessage) {
		mu.Lock()
		processed++
		mu.Unlock()
		if processed == 1 {
			panic("boom")
		}
	})
	q.Start()
	defer q.Stop()

	q.Enqueue(newTestPing())
	q.Enqueue(newTestPing())

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		done := processed == 2
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not survive a panicking handler")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDiscardingQueuedHandlerDropsOldest(t *testing.T) {
	var mu sync.Mutex
	var dropped []int
	block := make(chan struct{})

	var processed []int
	q := NewDiscardingQueuedHandler("test", 2, func(m QueuedMessage) {
		<-block
		mu.Lock()
		processed = append(processed, m.(*testPing).N)
		mu.Unlock()
	}, func(d QueuedMessage) {
		mu.Lock()
		dropped = append(dropped, d.(*testPing).N)
		mu.Unlock()
	})
	q.Start()

	// First message is immediately picked up by the worker and blocks on
	// <-block, so it never occupies a queue slot; the next three fill and
	// then overflow the capacity-2 backlog.
	p0 := newTestPing()
	p0.N = 0
	q.Enqueue(p0)
	time.Sleep(20 * time.Millisecond)

	for i := 1; i <= 3; i++ {
		p := newTestPing()
		p.N = i
		q.Enqueue(p)
	}

	mu.Lock()
	gotDropped := append([]int(nil), dropped...)
	mu.Unlock()
	if len(gotDropped) != 1 || gotDropped[0] != 1 {
		t.Fatalf("expected message 1 to be dropped (oldest of the backlog), got %v", gotDropped)
	}

	close(block)
	q.Stop()
}
