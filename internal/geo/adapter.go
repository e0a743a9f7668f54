package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/route"
)

// ErrRouteUnavailable means an address could not be resolved or no path
// exists between two points.
var ErrRouteUnavailable = errors.New("route unavailable")

// Adapter is the geo lookup surface consumed by the ride service and the
// broadcast worker.
type Adapter struct {
	Geocoder Geocoder
	Router   route.Router
	Drivers  DriverIndex
}

func (a *Adapter) CoordinatesOf(ctx context.Context, address string) (models.Coord, error) {
	c, err := a.Geocoder.CoordinatesOf(ctx, address)
	if errors.Is(err, ErrAddressNotFound) {
		return models.Coord{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	return c, err
}

func (a *Adapter) DistanceAndDuration(ctx context.Context, origin, destination models.Coord) (route.Leg, error) {
	leg, err := a.Router.Leg(ctx, origin, destination)
	if errors.Is(err, route.ErrNoRoute) {
		return route.Leg{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	return leg, err
}

func (a *Adapter) DriversWithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error) {
	return a.Drivers.WithinRadius(ctx, lat, lon, radiusKm)
}
