// Package matcher offers freshly requested rides to nearby drivers.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/queue"
	"github.com/example/ride-hailing/internal/storage"
)

const DefaultRadiusKm = 5.0

type Locator interface {
	CoordinatesOf(ctx context.Context, address string) (models.Coord, error)
	DriversWithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error)
}

type Notifier interface {
	NotifyParty(ctx context.Context, partyID, event string, payload any)
}

// Broadcaster consumes broadcast jobs and pushes a new-ride event to every
// driver within RadiusKm of the pickup.
type Broadcaster struct {
	Geo      Locator
	Rides    storage.RideRepository
	Notifier Notifier
	RadiusKm float64
	Logger   *slog.Logger
}

func (b *Broadcaster) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Run starts workers consumers and blocks until all of them return.
func (b *Broadcaster) Run(ctx context.Context, c queue.Consumer, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Consume(ctx, b.Handle); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Handle processes one job. Rides that are no longer open are skipped.
func (b *Broadcaster) Handle(ctx context.Context, job queue.Job) error {
	start := time.Now()
	err := b.broadcast(ctx, job)
	observability.BroadcastLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BroadcastJobs.WithLabelValues("failed").Inc()
		b.logger().Warn("broadcast failed", "ride_id", job.RideID, "error", err)
		return err
	}
	return nil
}

func (b *Broadcaster) broadcast(ctx context.Context, job queue.Job) error {
	r, err := b.Rides.FindByID(ctx, job.RideID, storage.FindOptions{})
	if err != nil {
		return fmt.Errorf("load ride: %w", err)
	}
	if r.Status != models.StatusRequested {
		observability.BroadcastJobs.WithLabelValues("skipped").Inc()
		b.logger().Debug("broadcast skipped", "ride_id", r.ID, "status", r.Status)
		return nil
	}

	pickup := job.Pickup
	if pickup == "" {
		pickup = r.Pickup
	}
	at, err := b.Geo.CoordinatesOf(ctx, pickup)
	if err != nil {
		return fmt.Errorf("geocode pickup: %w", err)
	}
	radius := b.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	drivers, err := b.Geo.DriversWithinRadius(ctx, at.Lat, at.Lon, radius)
	if err != nil {
		return fmt.Errorf("nearby drivers: %w", err)
	}
	observability.BroadcastDrivers.Observe(float64(len(drivers)))

	offer := r.WithoutOTP()
	for _, id := range drivers {
		b.Notifier.NotifyParty(ctx, id, dispatch.EventNewRide, offer)
	}
	observability.BroadcastJobs.WithLabelValues("sent").Inc()
	b.logger().Info("ride broadcast", "ride_id", r.ID, "drivers", len(drivers), "radius_km", radius)
	return nil
}
