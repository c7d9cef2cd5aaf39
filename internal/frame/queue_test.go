package frame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seqFrame(seq uint64) *Frame {
	return &Frame{Width: 1, Height: 1, Pixels: make([]byte, 4), Seq: seq}
}

func TestQueueOfferNeverBlocks(t *testing.T) {
	q := NewQueue()

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 1000; i++ {
			q.Offer(seqFrame(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Offer blocked without a consumer")
	}

	f := q.Latest()
	if f == nil || f.Seq != 1000 {
		t.Fatalf("Latest() = %v, want seq 1000", f)
	}
	if q.Latest() != nil {
		t.Error("slot should be empty after Latest")
	}

	stats := q.Stats()
	if stats.Offered != 1000 {
		t.Errorf("Offered = %d, want 1000", stats.Offered)
	}
	if stats.Dropped != 999 {
		t.Errorf("Dropped = %d, want 999", stats.Dropped)
	}
}

func TestQueueNextWaitsForFrame(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Offer(seqFrame(7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Seq != 7 {
		t.Errorf("Seq = %d, want 7", f.Seq)
	}
}

func TestQueueNextContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want DeadlineExceeded", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue()
	q.Offer(seqFrame(1))
	q.Close()

	if q.Offer(seqFrame(2)) {
		t.Error("Offer after Close should report false")
	}

	f, err := q.Next(context.Background())
	if err != nil || f.Seq != 1 {
		t.Fatalf("pending frame not delivered after Close: %v, %v", f, err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next() error = %v, want ErrClosed", err)
	}

	q.Close()
}

func TestQueueConsumerSeesIncreasingSeq(t *testing.T) {
	q := NewQueue()
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= total; i++ {
			q.Offer(seqFrame(i))
		}
		q.Close()
	}()

	var last uint64
	for {
		f, err := q.Next(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if f.Seq <= last {
			t.Fatalf("seq went from %d to %d", last, f.Seq)
		}
		last = f.Seq
	}
	wg.Wait()

	if last != total {
		t.Errorf("last seq = %d, want %d", last, total)
	}
}
