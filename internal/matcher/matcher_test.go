package matcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/queue"
	"github.com/example/ride-hailing/internal/storage"
)

type fakeGeo struct {
	drivers []string
	radius  float64
}

func (f *fakeGeo) CoordinatesOf(context.Context, string) (models.Coord, error) {
	return models.Coord{Lat: 12.9, Lon: 77.6}, nil
}

func (f *fakeGeo) DriversWithinRadius(_ context.Context, _, _, radiusKm float64) ([]string, error) {
	f.radius = radiusKm
	return f.drivers, nil
}

type offer struct {
	driver string
	event  string
	ride   *models.Ride
}

type recorder struct {
	mu     sync.Mutex
	offers []offer
}

func (r *recorder) NotifyParty(_ context.Context, partyID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, _ := payload.(*models.Ride)
	r.offers = append(r.offers, offer{driver: partyID, event: event, ride: ride})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

func seed(t *testing.T, status models.RideStatus) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	err := store.Create(context.Background(), &models.Ride{
		ID: "ride1", RiderID: "r1", Pickup: "A", Destination: "B",
		VehicleClass: models.VehicleCar, Fare: 125, Status: status, OTP: "483920",
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestBroadcastToNearbyDrivers(t *testing.T) {
	g := &fakeGeo{drivers: []string{"A", "B"}}
	rec := &recorder{}
	b := &Broadcaster{Geo: g, Rides: seed(t, models.StatusRequested), Notifier: rec}

	if err := b.Handle(context.Background(), queue.Job{RideID: "ride1", Pickup: "A"}); err != nil {
		t.Fatal(err)
	}
	if g.radius != DefaultRadiusKm {
		t.Fatalf("expected default radius, got %v", g.radius)
	}
	if len(rec.offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(rec.offers))
	}
	for _, o := range rec.offers {
		if o.event != "new-ride" {
			t.Fatalf("unexpected event %s", o.event)
		}
		if o.ride == nil || o.ride.OTP != "" {
			t.Fatal("otp must not reach drivers")
		}
	}
}

func TestBroadcastSkipsAcceptedRide(t *testing.T) {
	rec := &recorder{}
	b := &Broadcaster{Geo: &fakeGeo{drivers: []string{"A"}}, Rides: seed(t, models.StatusAccepted), Notifier: rec}
	if err := b.Handle(context.Background(), queue.Job{RideID: "ride1"}); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 0 {
		t.Fatal("accepted ride must not be broadcast")
	}
}

func TestBroadcastUnknownRide(t *testing.T) {
	b := &Broadcaster{Geo: &fakeGeo{}, Rides: storage.NewMemoryStore(), Notifier: &recorder{}}
	err := b.Handle(context.Background(), queue.Job{RideID: "missing"})
	if !errors.Is(err, storage.ErrRideNotFound) {
		t.Fatalf("expected ride not found, got %v", err)
	}
}

func TestRunConsumesQueue(t *testing.T) {
	rec := &recorder{}
	b := &Broadcaster{Geo: &fakeGeo{drivers: []string{"A"}}, Rides: seed(t, models.StatusRequested), Notifier: rec, RadiusKm: 3}
	q := queue.NewMemoryQueue(4)
	if err := q.Enqueue(context.Background(), queue.Job{RideID: "ride1"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, q, 2) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 offer, got %d", rec.count())
	}
}
