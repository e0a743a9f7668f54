package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, Job{RideID: "r1", Pickup: "A"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := make(chan Job, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, j Job) error {
			got <- j
			return nil
		})
	}()
	select {
	case j := <-got:
		if j.RideID != "r1" || j.Pickup != "A" {
			t.Fatalf("unexpected job %+v", j)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job not consumed")
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	if err := q.Enqueue(ctx, Job{RideID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, Job{RideID: "r2"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestMemoryQueueConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Consume(ctx, func(context.Context, Job) error { return nil }) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return")
	}
}
