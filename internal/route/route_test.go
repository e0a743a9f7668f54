package route

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := Haversine(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestEstimatorUsesSpeed(t *testing.T) {
	leg, err := Estimator{SpeedMps: 10}.Leg(context.Background(), models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if leg.DistanceMeters < 1100 || leg.DistanceMeters > 1125 {
		t.Fatalf("unexpected distance %f", leg.DistanceMeters)
	}
	if got := leg.DistanceMeters / 10; got != leg.DurationSeconds {
		t.Fatalf("expected duration %f, got %f", got, leg.DurationSeconds)
	}
}

func TestOSRMClientParsesRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":5000,"duration":900}]}`)
	}))
	defer srv.Close()

	leg, err := NewOSRMClient(srv.URL).Leg(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if err != nil {
		t.Fatalf("leg: %v", err)
	}
	if leg.DistanceMeters != 5000 || leg.DurationSeconds != 900 {
		t.Fatalf("unexpected leg %+v", leg)
	}
}

func TestOSRMClientNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","routes":[]}`)
	}))
	defer srv.Close()

	_, err := NewOSRMClient(srv.URL).Leg(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

type countingRouter struct{ calls int }

func (c *countingRouter) Leg(ctx context.Context, from, to models.Coord) (Leg, error) {
	c.calls++
	return Leg{DistanceMeters: 1, DurationSeconds: 1}, nil
}

func TestCachedRouter(t *testing.T) {
	inner := &countingRouter{}
	r := &Cached{Router: inner, Cache: NewCache(time.Minute)}
	a, b := models.Coord{Lat: 1}, models.Coord{Lat: 2}
	for i := 0; i < 3; i++ {
		if _, err := r.Leg(context.Background(), a, b); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", inner.calls)
	}
}
