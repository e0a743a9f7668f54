package geo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/route"
)

// DriverIndex tracks live driver positions and answers radius queries.
type DriverIndex interface {
	Upsert(ctx context.Context, d models.Driver) error
	WithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error)
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

// WithinRadius returns online drivers within radiusKm, nearest first.
// naive scan; in prod use geo-hash or H3
func (g *Index) WithinRadius(_ context.Context, lat, lon, radiusKm float64) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		id   string
		dist float64
	}
	limit := radiusKm * 1000
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Online {
			continue
		}
		dist := route.Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon)
		if dist > limit {
			continue
		}
		arr = append(arr, pair{d.ID, dist})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	out := make([]string, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.id)
	}
	return out, nil
}
