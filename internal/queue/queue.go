// Package queue carries post-creation broadcast jobs from the ride service
// to the broadcast workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrQueueFull = errors.New("broadcast queue full")

// Job asks the workers to offer a freshly requested ride to nearby drivers.
type Job struct {
	RideID     string    `json:"ride_id"`
	Pickup     string    `json:"pickup"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one job. Returned errors are logged by the consumer and
// the job is not redelivered.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Consumer blocks in Consume until ctx is cancelled or the source closes.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

func encode(job Job) ([]byte, error) { return json.Marshal(job) }

func decode(b []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(b, &j)
	return j, err
}
