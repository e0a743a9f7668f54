package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

var ErrAddressNotFound = errors.New("address not found")

// Geocoder resolves free-text addresses.
type Geocoder interface {
	CoordinatesOf(ctx context.Context, address string) (models.Coord, error)
}

// LiteralGeocoder accepts addresses written as "lat,lng". It is the
// fallback when no geocoding service is configured.
type LiteralGeocoder struct{}

func (LiteralGeocoder) CoordinatesOf(_ context.Context, address string) (models.Coord, error) {
	parts := strings.Split(address, ",")
	if len(parts) != 2 {
		return models.Coord{}, fmt.Errorf("%q: %w", address, ErrAddressNotFound)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return models.Coord{}, fmt.Errorf("%q: %w", address, ErrAddressNotFound)
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}

// NominatimGeocoder queries a Nominatim-compatible /search endpoint.
type NominatimGeocoder struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

func NewNominatimGeocoder(endpoint string) *NominatimGeocoder {
	return &NominatimGeocoder{Endpoint: endpoint, UserAgent: "ride-hailing/1.0", Client: &http.Client{Timeout: 3 * time.Second}}
}

func (n *NominatimGeocoder) CoordinatesOf(ctx context.Context, address string) (models.Coord, error) {
	q := url.Values{"q": {address}, "format": {"json"}, "limit": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint+"/search?"+q.Encode(), http.NoBody)
	if err != nil {
		return models.Coord{}, err
	}
	req.Header.Set("User-Agent", n.UserAgent)
	resp, err := n.Client.Do(req)
	if err != nil {
		return models.Coord{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coord{}, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}
	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Coord{}, fmt.Errorf("geocoder decode: %w", err)
	}
	if len(out) == 0 {
		return models.Coord{}, fmt.Errorf("%q: %w", address, ErrAddressNotFound)
	}
	lat, err1 := strconv.ParseFloat(out[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(out[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}, fmt.Errorf("geocoder returned bad coordinates for %q", address)
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}
