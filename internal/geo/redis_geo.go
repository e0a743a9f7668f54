package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisGeo implements DriverIndex using Redis GEO commands. Offline
// drivers are removed from the GEO set so radius queries only see
// available drivers.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if d.Online {
		// store as GEOADD and HSET for metadata
		if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
			return fmt.Errorf("geoadd %s: %w", d.ID, err)
		}
	} else if err := r.client.ZRem(ctx, r.key, d.ID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", d.ID, err)
	}
	return r.client.HSet(ctx, MetaKey(d.ID), map[string]interface{}{
		"rating":  fmt.Sprintf("%f", d.Rating),
		"online":  strconv.FormatBool(d.Online),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) WithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{Radius: radiusKm, Unit: "km", WithDist: true, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]string, 0, len(res))
	for _, g := range res {
		out = append(out, g.Name)
	}
	return out, nil
}

func MetaKey(id string) string { return "driver:meta:" + id }
