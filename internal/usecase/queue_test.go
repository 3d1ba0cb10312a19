package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"linkrelay/internal/domain"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(domain.RelayMessage{URL: fmt.Sprintf("https://example.com/%d", i)})
	}
	if q.Len() != 5 {
		t.Fatalf("depth = %d, want 5", q.Len())
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		want := fmt.Sprintf("https://example.com/%d", i)
		if msg.URL != want {
			t.Fatalf("dequeue %d = %s, want %s", i, msg.URL, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("depth after drain = %d", q.Len())
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	got := make(chan domain.RelayMessage, 1)

	go func() {
		msg, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		got <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(domain.RelayMessage{URL: "https://example.com/late"})

	select {
	case msg := <-got:
		if msg.URL != "https://example.com/late" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("dequeue did not wake after enqueue")
	}
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatalf("expected context error from empty queue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	const producers, perProducer = 8, 25

	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProducer; i++ {
				q.Enqueue(domain.RelayMessage{URL: fmt.Sprintf("p%d-%d", p, i)})
			}
		}(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	seen := map[string]struct{}{}
	for i := 0; i < producers*perProducer; i++ {
		msg, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if _, dup := seen[msg.URL]; dup {
			t.Fatalf("message %s delivered twice", msg.URL)
		}
		seen[msg.URL] = struct{}{}
	}
}
