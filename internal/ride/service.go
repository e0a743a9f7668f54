// Package ride coordinates the ride lifecycle: creation, driver
// confirmation, OTP-verified start and completion.
//
// The service keeps no mutable state of its own. Every transition is a
// conditional update on the repository, so concurrent calls on the same
// ride are serialised by the store.
package ride

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/queue"
	"github.com/example/ride-hailing/internal/route"
	"github.com/example/ride-hailing/internal/storage"
)

// GeoLookup is the part of the geo adapter the service needs.
type GeoLookup interface {
	CoordinatesOf(ctx context.Context, address string) (models.Coord, error)
	DistanceAndDuration(ctx context.Context, origin, destination models.Coord) (route.Leg, error)
}

type Notifier interface {
	NotifyParty(ctx context.Context, partyID, event string, payload any)
}

type OTPSource interface {
	Generate() (string, error)
}

type Service struct {
	Repo      storage.RideRepository
	Directory storage.Directory // optional
	Geo       GeoLookup
	Fares     *fare.Calculator
	OTP       OTPSource
	Notifier  Notifier
	Queue     queue.Queue
	Logger    *slog.Logger

	NewID func() string
	Now   func() time.Time
}

// RideRequest is a rider's ride request.
type RideRequest struct {
	Rider        string
	Pickup       string
	Destination  string
	VehicleClass models.VehicleClass
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// FareQuote prices the route between two addresses for every vehicle class.
func (s *Service) FareQuote(ctx context.Context, pickup, destination string) (fare.Quote, error) {
	if blank(pickup) || blank(destination) {
		return nil, validationError("pickup and destination are required")
	}
	q, _, err := s.quote(ctx, pickup, destination)
	return q, err
}

func (s *Service) quote(ctx context.Context, pickup, destination string) (fare.Quote, route.Leg, error) {
	from, err := s.Geo.CoordinatesOf(ctx, pickup)
	if err != nil {
		return nil, route.Leg{}, geoError(err)
	}
	to, err := s.Geo.CoordinatesOf(ctx, destination)
	if err != nil {
		return nil, route.Leg{}, geoError(err)
	}
	leg, err := s.Geo.DistanceAndDuration(ctx, from, to)
	if err != nil {
		return nil, route.Leg{}, geoError(err)
	}
	return s.Fares.Quote(leg.DistanceMeters, leg.DurationSeconds), leg, nil
}

// RequestRide creates a ride in the requested state and queues the
// broadcast to nearby drivers. The broadcast never affects the result.
func (s *Service) RequestRide(ctx context.Context, req RideRequest) (*models.Ride, error) {
	switch {
	case blank(req.Rider):
		return nil, validationError("rider is required")
	case blank(req.Pickup):
		return nil, validationError("pickup is required")
	case blank(req.Destination):
		return nil, validationError("destination is required")
	case req.VehicleClass == "":
		return nil, validationError("vehicle class is required")
	case !req.VehicleClass.Valid():
		return nil, validationError("unknown vehicle class %q", req.VehicleClass)
	}

	q, leg, err := s.quote(ctx, req.Pickup, req.Destination)
	if err != nil {
		return nil, err
	}
	price, ok := q[req.VehicleClass]
	if !ok {
		return nil, validationError("no fare for vehicle class %q", req.VehicleClass)
	}
	code, err := s.OTP.Generate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &models.Ride{
		ID:              s.newID(),
		RiderID:         req.Rider,
		Pickup:          req.Pickup,
		Destination:     req.Destination,
		VehicleClass:    req.VehicleClass,
		Fare:            price,
		Status:          models.StatusRequested,
		OTP:             code,
		DistanceMeters:  leg.DistanceMeters,
		DurationSeconds: leg.DurationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	observability.RidesRequested.Inc()
	s.logger().Info("ride requested", "ride_id", r.ID, "rider", r.RiderID, "vehicle_class", r.VehicleClass, "fare", r.Fare)

	if s.Queue != nil {
		job := queue.Job{RideID: r.ID, Pickup: r.Pickup, EnqueuedAt: now}
		if err := s.Queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
			observability.BroadcastJobs.WithLabelValues("enqueue_failed").Inc()
			s.logger().Warn("broadcast enqueue failed", "ride_id", r.ID, "error", err)
		}
	}
	return r, nil
}

// GetRide returns the stored ride. The OTP is only included on request.
func (s *Service) GetRide(ctx context.Context, rideID string, includeOTP bool) (*models.Ride, error) {
	if blank(rideID) {
		return nil, validationError("ride id is required")
	}
	r, err := s.Repo.FindByID(ctx, rideID, storage.FindOptions{IncludeOTP: includeOTP})
	if err != nil {
		return nil, repoError(err)
	}
	return r, nil
}

// ConfirmRide assigns driver to a requested ride. Only one of several
// concurrent confirmations can win; the others get ErrAlreadyAccepted.
func (s *Service) ConfirmRide(ctx context.Context, rideID, driver string) (*models.Ride, error) {
	if blank(rideID) || blank(driver) {
		return nil, validationError("ride id and driver are required")
	}
	r, err := s.Repo.UpdateIfStatus(ctx, rideID, models.StatusRequested,
		storage.Patch{Status: models.StatusAccepted, DriverID: driver})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			observability.TransitionConflicts.WithLabelValues("confirm").Inc()
			return nil, s.currentStatusError(ctx, rideID, ErrAlreadyAccepted)
		}
		return nil, repoError(err)
	}
	s.transitioned(ctx, r, dispatch.EventRideConfirmed)
	return r, nil
}

// StartRide moves an accepted ride to ongoing once the rider's OTP is
// presented by the assigned driver.
func (s *Service) StartRide(ctx context.Context, rideID, otp, driver string) (*models.Ride, error) {
	if blank(rideID) || blank(otp) || blank(driver) {
		return nil, validationError("ride id, otp and driver are required")
	}
	r, err := s.Repo.FindByID(ctx, rideID, storage.FindOptions{IncludeOTP: true})
	if err != nil {
		return nil, repoError(err)
	}
	if r.DriverID != driver {
		return nil, ErrRideNotFound
	}
	if r.Status != models.StatusAccepted {
		return nil, withStatus(ErrRideNotAccepted, r.Status)
	}
	if subtle.ConstantTimeCompare([]byte(r.OTP), []byte(otp)) != 1 {
		s.logger().Info("otp mismatch", "ride_id", rideID, "driver", driver)
		return nil, ErrInvalidOTP
	}

	r, err = s.Repo.UpdateIfStatus(ctx, rideID, models.StatusAccepted, storage.Patch{Status: models.StatusOngoing})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			observability.TransitionConflicts.WithLabelValues("start").Inc()
			return nil, s.currentStatusError(ctx, rideID, ErrRideNotAccepted)
		}
		return nil, repoError(err)
	}
	s.transitioned(ctx, r, dispatch.EventRideStarted)
	return r, nil
}

// EndRide completes an ongoing ride. A driver who is not assigned to the
// ride gets ErrRideNotFound whatever the ride's status.
func (s *Service) EndRide(ctx context.Context, rideID, driver string) (*models.Ride, error) {
	if blank(rideID) || blank(driver) {
		return nil, validationError("ride id and driver are required")
	}
	r, err := s.Repo.FindByID(ctx, rideID, storage.FindOptions{})
	if err != nil {
		return nil, repoError(err)
	}
	if r.DriverID != driver {
		return nil, ErrRideNotFound
	}
	if r.Status != models.StatusOngoing {
		return nil, withStatus(ErrRideNotOngoing, r.Status)
	}

	r, err = s.Repo.UpdateIfStatus(ctx, rideID, models.StatusOngoing, storage.Patch{Status: models.StatusCompleted})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			observability.TransitionConflicts.WithLabelValues("end").Inc()
			return nil, s.currentStatusError(ctx, rideID, ErrRideNotOngoing)
		}
		return nil, repoError(err)
	}
	s.transitioned(ctx, r, dispatch.EventRideEnded)
	return r, nil
}

// RecordPayment attaches payment metadata reported by an external payment
// flow to a completed ride. No money moves here.
func (s *Service) RecordPayment(ctx context.Context, rideID string, p models.Payment) (*models.Ride, error) {
	if blank(rideID) || p.Empty() {
		return nil, validationError("ride id and payment metadata are required")
	}
	r, err := s.Repo.UpdateIfStatus(ctx, rideID, models.StatusCompleted, storage.Patch{Payment: &p})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, s.currentStatusError(ctx, rideID, ErrRideNotCompleted)
		}
		return nil, repoError(err)
	}
	s.logger().Info("payment recorded", "ride_id", rideID, "payment_id", p.PaymentID)
	return r, nil
}

func (s *Service) transitioned(ctx context.Context, r *models.Ride, event string) {
	observability.RideTransitions.WithLabelValues(string(r.Status)).Inc()
	s.logger().Info("ride transitioned", "ride_id", r.ID, "status", r.Status, "driver", r.DriverID)
	s.attachProfiles(ctx, r)
	if s.Notifier != nil {
		s.Notifier.NotifyParty(ctx, r.RiderID, event, r)
	}
}

func (s *Service) attachProfiles(ctx context.Context, r *models.Ride) {
	r.Rider = s.profile(ctx, r.RiderID, models.RoleRider)
	if r.DriverID != "" {
		r.Driver = s.profile(ctx, r.DriverID, models.RoleDriver)
	}
}

func (s *Service) profile(ctx context.Context, id string, role models.PartyRole) *models.Party {
	if s.Directory != nil {
		p, err := s.Directory.Get(ctx, id)
		if err == nil {
			return p
		}
		if !errors.Is(err, storage.ErrPartyNotFound) {
			s.logger().Warn("profile lookup failed", "party", id, "error", err)
		}
	}
	return &models.Party{ID: id, Role: role}
}

// currentStatusError re-reads the ride after a lost conditional update so
// the caller learns the status that beat it.
func (s *Service) currentStatusError(ctx context.Context, rideID string, base *Error) error {
	r, err := s.Repo.FindByID(ctx, rideID, storage.FindOptions{})
	if err != nil {
		return repoError(err)
	}
	return withStatus(base, r.Status)
}

func repoError(err error) error {
	if errors.Is(err, storage.ErrRideNotFound) {
		return ErrRideNotFound
	}
	return err
}

func geoError(err error) error {
	if errors.Is(err, geo.ErrRouteUnavailable) {
		return ErrRouteUnavailable
	}
	return fmt.Errorf("geo lookup: %w", err)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
