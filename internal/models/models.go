package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VehicleClass selects the rate row used to price a ride.
type VehicleClass string

const (
	VehicleCar  VehicleClass = "car"
	VehicleAuto VehicleClass = "auto"
	VehicleMoto VehicleClass = "moto"
)

// VehicleClasses lists every class a fare quote is produced for.
var VehicleClasses = []VehicleClass{VehicleCar, VehicleAuto, VehicleMoto}

func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleCar, VehicleAuto, VehicleMoto:
		return true
	}
	return false
}

type RideStatus string

const (
	StatusRequested RideStatus = "requested"
	StatusAccepted  RideStatus = "accepted"
	StatusOngoing   RideStatus = "ongoing"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// transitions is the ride state machine. Completed and cancelled are terminal.
var transitions = map[RideStatus][]RideStatus{
	StatusRequested: {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s RideStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RideStatus) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Payment holds metadata of a payment flow layered on top of a ride.
// The ride service never moves money.
type Payment struct {
	PaymentID string `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	OrderID   string `json:"order_id,omitempty" bson:"order_id,omitempty"`
	Signature string `json:"signature,omitempty" bson:"signature,omitempty"`
}

func (p *Payment) Empty() bool {
	return p == nil || (p.PaymentID == "" && p.OrderID == "" && p.Signature == "")
}

type Ride struct {
	ID              string       `json:"id" bson:"_id"`
	RiderID         string       `json:"rider_id" bson:"rider_id"`
	DriverID        string       `json:"driver_id,omitempty" bson:"driver_id,omitempty"`
	Pickup          string       `json:"pickup" bson:"pickup"`
	Destination     string       `json:"destination" bson:"destination"`
	VehicleClass    VehicleClass `json:"vehicle_class" bson:"vehicle_class"`
	Fare            int64        `json:"fare" bson:"fare"`
	Status          RideStatus   `json:"status" bson:"status"`
	OTP             string       `json:"otp,omitempty" bson:"otp,omitempty"`
	DistanceMeters  float64      `json:"distance_meters,omitempty" bson:"distance_meters,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty" bson:"duration_seconds,omitempty"`
	Payment         *Payment     `json:"payment,omitempty" bson:"payment,omitempty"`
	CreatedAt       time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" bson:"updated_at"`

	// Profiles are attached to responses and events, never stored.
	Rider  *Party `json:"rider,omitempty" bson:"-"`
	Driver *Party `json:"driver,omitempty" bson:"-"`
}

// WithoutOTP returns a shallow copy with the OTP blanked, for driver-facing views.
func (r *Ride) WithoutOTP() *Ride {
	cp := *r
	cp.OTP = ""
	return &cp
}

type PartyRole string

const (
	RoleRider  PartyRole = "rider"
	RoleDriver PartyRole = "driver"
)

func (r PartyRole) Valid() bool { return r == RoleRider || r == RoleDriver }

// Party is the public profile of a rider or driver.
type Party struct {
	ID           string       `json:"id" bson:"_id"`
	Role         PartyRole    `json:"role" bson:"role"`
	Name         string       `json:"name" bson:"name"`
	Phone        string       `json:"phone,omitempty" bson:"phone,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class,omitempty" bson:"vehicle_class,omitempty"`
	Plate        string       `json:"plate,omitempty" bson:"plate,omitempty"`
}

type Driver struct {
	ID      string    `json:"id"`
	Loc     Coord     `json:"loc"`
	Rating  float64   `json:"rating"` // 0..5
	Online  bool      `json:"online"`
	Updated time.Time `json:"updated"`
}
