// Package payments turns signed Stripe webhook deliveries into payment
// metadata for completed rides. It never creates or captures charges.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/example/ride-hailing/internal/models"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"

	// Metadata keys set on the PaymentIntent by the checkout flow.
	MetadataRideID  = "ride_id"
	MetadataOrderID = "order_id"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("event type not handled")
	ErrMissingRide      = errors.New("payment intent has no ride id")
)

// Settlement is the payment outcome for one ride.
type Settlement struct {
	RideID  string
	Payment models.Payment
}

type Webhook struct {
	secret    string
	tolerance time.Duration
}

func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies the Stripe-Signature header and extracts the settlement
// from a succeeded PaymentIntent.
func (w *Webhook) Parse(payload []byte, header string) (Settlement, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, w.secret, webhook.ConstructEventOptions{
		Tolerance:                w.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != EventPaymentSucceeded {
		return Settlement{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}
	if event.Data == nil {
		return Settlement{}, fmt.Errorf("event %s has no data", event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Settlement{}, fmt.Errorf("decode payment intent: %w", err)
	}
	rideID := pi.Metadata[MetadataRideID]
	if rideID == "" {
		return Settlement{}, fmt.Errorf("%w: %s", ErrMissingRide, pi.ID)
	}
	order := pi.Metadata[MetadataOrderID]
	if order == "" {
		order = event.ID
	}
	return Settlement{
		RideID: rideID,
		Payment: models.Payment{
			PaymentID: pi.ID,
			OrderID:   order,
			Signature: signatureOf(header),
		},
	}, nil
}

// signatureOf returns the first v1 signature in a Stripe-Signature header.
func signatureOf(header string) string {
	for _, part := range strings.Split(header, ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "v1="); ok {
			return v
		}
	}
	return ""
}
