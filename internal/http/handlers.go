package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/ride"
	"github.com/example/ride-hailing/internal/storage"
)

const maxBodyBytes = 64 << 10

type RideService interface {
	RequestRide(ctx context.Context, req ride.RideRequest) (*models.Ride, error)
	FareQuote(ctx context.Context, pickup, destination string) (fare.Quote, error)
	ConfirmRide(ctx context.Context, rideID, driver string) (*models.Ride, error)
	StartRide(ctx context.Context, rideID, otp, driver string) (*models.Ride, error)
	EndRide(ctx context.Context, rideID, driver string) (*models.Ride, error)
	GetRide(ctx context.Context, rideID string, includeOTP bool) (*models.Ride, error)
	RecordPayment(ctx context.Context, rideID string, p models.Payment) (*models.Ride, error)
}

type Notifier interface {
	Bind(ctx context.Context, partyID, channelID string) error
	NotifyParty(ctx context.Context, partyID, event string, payload any)
}

type LocationTracker interface {
	Update(ctx context.Context, d models.Driver) error
}

// Deps wires the server. Auth, Payments and Ready are optional.
type Deps struct {
	Rides     RideService
	Parties   storage.Directory
	Notifier  Notifier
	Sessions  *dispatch.WSRegistry
	Locations LocationTracker
	Auth      *auth.Verifier
	Payments  *payments.Webhook
	Ready     func(ctx context.Context) error
	Logger    *slog.Logger
}

type Server struct {
	Deps
	mux      *mux.Router
	logger   *slog.Logger
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Deps: d, mux: mux.NewRouter(), logger: logger, validate: newValidator()}
	s.registerMiddleware()
	s.routes()
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/payments/webhook", s.handlePaymentWebhook).Methods("POST")

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/parties", s.handleRegisterParty).Methods("POST")
	api.HandleFunc("/rides", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/fare", s.handleFareQuote).Methods("GET")
	api.HandleFunc("/rides/confirm", s.handleConfirmRide).Methods("POST")
	api.HandleFunc("/rides/start", s.handleStartRide).Methods("POST")
	api.HandleFunc("/rides/end", s.handleEndRide).Methods("POST")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type rideRequest struct {
	Rider        string `json:"rider" validate:"required"`
	Pickup       string `json:"pickup" validate:"required"`
	Destination  string `json:"destination" validate:"required"`
	VehicleClass string `json:"vehicle_class" validate:"required,oneof=car auto moto"`
}

type confirmRequest struct {
	RideID string `json:"ride_id" validate:"required"`
	Driver string `json:"driver" validate:"required"`
}

type startRequest struct {
	RideID string `json:"ride_id" validate:"required"`
	OTP    string `json:"otp" validate:"required"`
	Driver string `json:"driver" validate:"required"`
}

type partyRequest struct {
	ID           string `json:"id" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=rider driver"`
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"omitempty,e164"`
	VehicleClass string `json:"vehicle_class" validate:"omitempty,oneof=car auto moto"`
	Plate        string `json:"plate"`
}

type locationRequest struct {
	ID     string  `json:"id" validate:"required"`
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `json:"lon" validate:"gte=-180,lte=180"`
	Rating float64 `json:"rating" validate:"gte=0,lte=5"`
	Online *bool   `json:"online"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req rideRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := claim(r.Context(), &req.Rider, models.RoleRider); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.check(req); err != nil {
		s.writeError(w, err)
		return
	}
	rd, err := s.Rides.RequestRide(r.Context(), ride.RideRequest{
		Rider:        req.Rider,
		Pickup:       req.Pickup,
		Destination:  req.Destination,
		VehicleClass: models.VehicleClass(req.VehicleClass),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

func (s *Server) handleFareQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quote, err := s.Rides.FareQuote(r.Context(), q.Get("pickup"), q.Get("destination"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleConfirmRide(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := s.decodeDriverRequest(r, &req, &req.Driver); err != nil {
		s.writeError(w, err)
		return
	}
	rd, err := s.Rides.ConfirmRide(r.Context(), req.RideID, req.Driver)
	s.respondRide(w, rd, err)
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decodeDriverRequest(r, &req, &req.Driver); err != nil {
		s.writeError(w, err)
		return
	}
	rd, err := s.Rides.StartRide(r.Context(), req.RideID, req.OTP, req.Driver)
	s.respondRide(w, rd, err)
}

func (s *Server) handleEndRide(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := s.decodeDriverRequest(r, &req, &req.Driver); err != nil {
		s.writeError(w, err)
		return
	}
	rd, err := s.Rides.EndRide(r.Context(), req.RideID, req.Driver)
	s.respondRide(w, rd, err)
}

// handleGetRide returns the ride; the OTP is only shown to its rider.
func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rd, err := s.Rides.GetRide(r.Context(), mux.Vars(r)["id"], true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	viewer := r.URL.Query().Get("rider")
	if id, ok := auth.FromContext(r.Context()); ok {
		viewer = id.PartyID
	}
	if viewer == "" || viewer != rd.RiderID {
		rd = rd.WithoutOTP()
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleRegisterParty(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := claim(r.Context(), &req.ID, models.PartyRole(req.Role)); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.check(req); err != nil {
		s.writeError(w, err)
		return
	}
	p := &models.Party{
		ID:           req.ID,
		Role:         models.PartyRole(req.Role),
		Name:         req.Name,
		Phone:        req.Phone,
		VehicleClass: models.VehicleClass(req.VehicleClass),
		Plate:        req.Plate,
	}
	if err := s.Parties.Put(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.check(req); err != nil {
		s.writeError(w, err)
		return
	}
	d := models.Driver{ID: req.ID, Loc: models.Coord{Lat: req.Lat, Lon: req.Lon}, Rating: req.Rating, Online: true}
	if req.Online != nil {
		d.Online = *req.Online
	}
	if err := s.Locations.Update(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, err)
		return
	}
	settlement, err := s.Payments.Parse(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_signature", "invalid webhook signature", ""))
		return
	case errors.Is(err, payments.ErrIgnoredEvent), errors.Is(err, payments.ErrMissingRide):
		s.logger.Info("payment webhook ignored", "reason", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ignored": true})
		return
	case err != nil:
		s.writeError(w, err)
		return
	}
	rd, err := s.Rides.RecordPayment(r.Context(), settlement.RideID, settlement.Payment)
	s.respondRide(w, rd, err)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) decodeDriverRequest(r *http.Request, req any, driver *string) error {
	if err := decodeJSON(r, req); err != nil {
		return err
	}
	if err := claim(r.Context(), driver, models.RoleDriver); err != nil {
		return err
	}
	return s.check(req)
}

func (s *Server) respondRide(w http.ResponseWriter, rd *models.Ride, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

// check runs struct validation and reports the first failing field.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ride.Error{Kind: ride.KindValidation, Message: fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())}
	}
	return &ride.Error{Kind: ride.KindValidation, Message: err.Error()}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &ride.Error{Kind: ride.KindValidation, Message: "malformed json body"}
	}
	return nil
}

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// claim fills or checks a party id field against the authenticated caller.
// Without an identity on the context the body is trusted as is.
func claim(ctx context.Context, field *string, role models.PartyRole) error {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil
	}
	if id.Role != role {
		return errForbidden
	}
	if *field == "" {
		*field = id.PartyID
		return nil
	}
	if *field != id.PartyID {
		return errForbidden
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var rerr *ride.Error
	switch {
	case errors.As(err, &rerr):
		writeJSON(w, statusFor(rerr.Kind), errorBody(string(rerr.Kind), rerr.Message, string(rerr.Status)))
	case errors.Is(err, errUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "missing or invalid token", ""))
	case errors.Is(err, errForbidden):
		writeJSON(w, http.StatusForbidden, errorBody("forbidden", "party does not match token", ""))
	case errors.Is(err, ingest.ErrInvalidLocation):
		writeJSON(w, http.StatusBadRequest, errorBody(string(ride.KindValidation), err.Error(), ""))
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal", "internal error", ""))
	}
}

func statusFor(kind ride.Kind) int {
	switch kind {
	case ride.KindValidation:
		return http.StatusBadRequest
	case ride.KindRideNotFound:
		return http.StatusNotFound
	case ride.KindAlreadyAccepted, ride.KindRideNotAccepted, ride.KindRideNotOngoing, ride.KindRideNotCompleted:
		return http.StatusConflict
	case ride.KindInvalidOTP, ride.KindRouteUnavailable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func errorBody(kind, message, status string) map[string]apiError {
	return map[string]apiError{"error": {Kind: kind, Message: message, Status: status}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
