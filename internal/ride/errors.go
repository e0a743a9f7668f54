package ride

import (
	"errors"
	"fmt"

	"github.com/example/ride-hailing/internal/models"
)

// Kind is the stable, machine-checkable class of a caller-facing error.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindRideNotFound     Kind = "ride_not_found"
	KindRideNotAccepted  Kind = "ride_not_accepted"
	KindRideNotOngoing   Kind = "ride_not_ongoing"
	KindRideNotCompleted Kind = "ride_not_completed"
	KindAlreadyAccepted  Kind = "already_accepted"
	KindInvalidOTP       Kind = "invalid_otp"
	KindRouteUnavailable Kind = "route_unavailable"
)

// Error is returned for every failure the caller can act on. Status carries
// the ride's current status for precondition failures.
type Error struct {
	Kind    Kind
	Message string
	Status  models.RideStatus
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s (current status %s)", e.Message, e.Status)
	}
	return e.Message
}

// Is matches on Kind so errors.Is(err, ErrInvalidOTP) works for any
// instance of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrRideNotFound     = &Error{Kind: KindRideNotFound, Message: "ride not found"}
	ErrRideNotAccepted  = &Error{Kind: KindRideNotAccepted, Message: "ride is not accepted"}
	ErrRideNotOngoing   = &Error{Kind: KindRideNotOngoing, Message: "ride is not ongoing"}
	ErrRideNotCompleted = &Error{Kind: KindRideNotCompleted, Message: "ride is not completed"}
	ErrAlreadyAccepted  = &Error{Kind: KindAlreadyAccepted, Message: "ride is no longer open for acceptance"}
	ErrInvalidOTP       = &Error{Kind: KindInvalidOTP, Message: "invalid otp"}
	ErrRouteUnavailable = &Error{Kind: KindRouteUnavailable, Message: "no route between pickup and destination"}
)

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func withStatus(base *Error, status models.RideStatus) error {
	return &Error{Kind: base.Kind, Message: base.Message, Status: status}
}

// KindOf returns the kind of a caller-facing error, or "" for internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
