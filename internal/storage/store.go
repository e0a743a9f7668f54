package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

var (
	ErrRideNotFound   = errors.New("ride not found")
	ErrStatusConflict = errors.New("ride status changed concurrently")
	ErrDuplicateRide  = errors.New("ride already exists")
	ErrPartyNotFound  = errors.New("party not found")
)

// FindOptions controls which normally hidden fields a read returns.
type FindOptions struct {
	IncludeOTP bool
}

// Patch describes a conditional update. Zero fields are left untouched.
type Patch struct {
	Status   models.RideStatus
	DriverID string
	Payment  *models.Payment
}

// RideRepository persists rides. UpdateIfStatus is the only mutation and
// must be atomic: it applies the patch only while the stored status still
// equals expected, returning ErrStatusConflict otherwise and
// ErrRideNotFound when the id does not resolve.
type RideRepository interface {
	Create(ctx context.Context, r *models.Ride) error
	FindByID(ctx context.Context, id string, opts FindOptions) (*models.Ride, error)
	UpdateIfStatus(ctx context.Context, id string, expected models.RideStatus, p Patch) (*models.Ride, error)
}

// Directory resolves party profiles.
type Directory interface {
	Get(ctx context.Context, id string) (*models.Party, error)
	Put(ctx context.Context, p *models.Party) error
}

// validatePatch rejects patches that would break ride invariants before
// they reach a backend.
func validatePatch(expected models.RideStatus, p Patch) error {
	if p.Status != "" && !expected.CanTransitionTo(p.Status) {
		return fmt.Errorf("illegal transition %s -> %s", expected, p.Status)
	}
	if p.DriverID != "" && p.Status != models.StatusAccepted {
		return fmt.Errorf("driver can only be assigned on transition to %s", models.StatusAccepted)
	}
	return nil
}

// apply mutates r in place. The caller has already matched the expected status.
func (p Patch) apply(r *models.Ride, now time.Time) error {
	if p.DriverID != "" {
		if r.DriverID != "" && r.DriverID != p.DriverID {
			return ErrStatusConflict
		}
		r.DriverID = p.DriverID
	}
	if p.Status != "" {
		r.Status = p.Status
	}
	if !p.Payment.Empty() {
		pay := *p.Payment
		r.Payment = &pay
	}
	r.UpdatedAt = now
	return nil
}
