// Package ingest accepts live driver locations and fans them out to the
// driver index and the location topic.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

var ErrInvalidLocation = errors.New("invalid driver location")

type Publisher interface {
	PublishLocation(ctx context.Context, d models.Driver) error
}

// Tracker applies location updates. The index write is authoritative; the
// publish is best effort.
type Tracker struct {
	Index     geo.DriverIndex
	Publisher Publisher // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

func (t *Tracker) Update(ctx context.Context, d models.Driver) error {
	if err := Validate(d); err != nil {
		return err
	}
	if t.Now != nil {
		d.Updated = t.Now()
	} else {
		d.Updated = time.Now()
	}
	if err := t.Index.Upsert(ctx, d); err != nil {
		return fmt.Errorf("index driver %s: %w", d.ID, err)
	}
	observability.LocationUpdates.Inc()

	if t.Publisher != nil {
		if err := t.Publisher.PublishLocation(ctx, d); err != nil {
			logger := t.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("location publish failed", "driver", d.ID, "error", err)
		}
	}
	return nil
}

func Validate(d models.Driver) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: missing driver id", ErrInvalidLocation)
	case d.Loc.Lat < -90 || d.Loc.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, d.Loc.Lat)
	case d.Loc.Lon < -180 || d.Loc.Lon > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, d.Loc.Lon)
	case d.Rating < 0 || d.Rating > 5:
		return fmt.Errorf("%w: rating %v out of range", ErrInvalidLocation, d.Rating)
	}
	return nil
}
