package route

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// ErrNoRoute is returned when the routing backend finds no path.
var ErrNoRoute = errors.New("no route between points")

// Leg is the driving distance and duration between two points.
type Leg struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Router resolves driving legs.
type Router interface {
	Leg(ctx context.Context, from, to models.Coord) (Leg, error)
}

// Cache is a tiny in-memory cache for leg lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  Leg
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (Leg, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Leg{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Leg{}, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v Leg) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Cached wraps a Router with a Cache. Failed lookups are not cached.
type Cached struct {
	Router Router
	Cache  *Cache
}

func (c *Cached) Leg(ctx context.Context, from, to models.Coord) (Leg, error) {
	if v, ok := c.Cache.Get(from, to); ok {
		return v, nil
	}
	v, err := c.Router.Leg(ctx, from, to)
	if err != nil {
		return Leg{}, err
	}
	c.Cache.Set(from, to, v)
	return v, nil
}

// Estimator is the naive router: straight-line distance at a fixed speed.
// Used when no routing engine is configured.
type Estimator struct {
	SpeedMps float64
}

func (e Estimator) Leg(_ context.Context, from, to models.Coord) (Leg, error) {
	speed := e.SpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	d := Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return Leg{DistanceMeters: d, DurationSeconds: d / speed}, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
