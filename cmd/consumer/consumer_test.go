package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-hailing/internal/models"
)

// fakeIndex fails the first failures upserts.
type fakeIndex struct {
	failures int
	calls    int
	got      []models.Driver
}

func (f *fakeIndex) Upsert(_ context.Context, d models.Driver) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("redis down")
	}
	f.got = append(f.got, d)
	return nil
}

func (f *fakeIndex) WithinRadius(context.Context, float64, float64, float64) ([]string, error) {
	return nil, nil
}

func TestUpdateIndexWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeIndex{failures: 2}
	d := models.Driver{ID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Rating: 4.5, Online: true}
	start := time.Now()
	if err := updateIndexWithRetry(context.Background(), f, d, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestUpdateIndexWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeIndex{failures: 5}
	d := models.Driver{ID: "d1", Online: true}
	if err := updateIndexWithRetry(context.Background(), f, d, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}

func TestUpdateIndexWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeIndex{failures: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := updateIndexWithRetry(ctx, f, models.Driver{ID: "d1"}, 3, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.calls)
	}
}

// scriptedReader returns queued messages, then blocks until ctx ends.
type scriptedReader struct {
	msgs []kafka.Message
}

func (s *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) > 0 {
		m := s.msgs[0]
		s.msgs = s.msgs[1:]
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func TestConsumeSkipsInvalidMessages(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		{Value: []byte(`not json`)},
		{Value: []byte(`{"id":"","loc":{"lat":1,"lon":1}}`)},
		{Value: []byte(`{"id":"d1","loc":{"lat":1,"lon":1},"online":true}`)},
	}}
	f := &fakeIndex{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	consume(ctx, r, f, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if len(f.got) != 1 || f.got[0].ID != "d1" {
		t.Fatalf("expected only d1 indexed, got %+v", f.got)
	}
}
