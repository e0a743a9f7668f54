package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-hailing/internal/observability"
)

// Events pushed to parties.
const (
	EventNewRide        = "new-ride"
	EventRideConfirmed  = "ride-confirmed"
	EventRideStarted    = "ride-started"
	EventRideEnded      = "ride-ended"
	EventDriverLocation = "driver-location"
)

// Envelope is the wire shape of every pushed message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Sender delivers an envelope to one channel.
type Sender interface {
	Deliver(ctx context.Context, channelID string, msg Envelope) error
}

// Notifier is the process-wide real-time notifier. Delivery is best
// effort: unbound or stale channels are dropped and errors are only
// logged, so callers never fail because a party is offline.
type Notifier struct {
	sessions SessionStore
	primary  Sender
	mirrors  []Sender
	logger   *slog.Logger
}

// NewNotifier builds a notifier. primary decides whether an event was
// delivered; mirrors receive a copy of every delivered event.
func NewNotifier(sessions SessionStore, primary Sender, logger *slog.Logger, mirrors ...Sender) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sessions: sessions, primary: primary, mirrors: mirrors, logger: logger}
}

// Bind records or overwrites the channel of a party.
func (n *Notifier) Bind(ctx context.Context, partyID, channelID string) error {
	return n.sessions.SetChannel(ctx, partyID, channelID)
}

// Send delivers event to channelID, fire and forget.
func (n *Notifier) Send(ctx context.Context, channelID, event string, payload any) {
	msg := Envelope{Event: event, Data: payload}
	err := n.primary.Deliver(ctx, channelID, msg)
	switch {
	case err == nil:
		observability.Notifications.WithLabelValues(event, "sent").Inc()
	case errors.Is(err, ErrNoSession):
		observability.Notifications.WithLabelValues(event, "dropped").Inc()
		n.logger.Debug("notification dropped", "event", event, "channel", channelID)
		return
	default:
		observability.Notifications.WithLabelValues(event, "failed").Inc()
		n.logger.Warn("notification failed", "event", event, "channel", channelID, "error", err)
		return
	}
	for _, m := range n.mirrors {
		if err := m.Deliver(ctx, channelID, msg); err != nil {
			n.logger.Warn("notification mirror failed", "event", event, "channel", channelID, "error", err)
		}
	}
}

// NotifyParty resolves the party's current channel and sends to it.
func (n *Notifier) NotifyParty(ctx context.Context, partyID, event string, payload any) {
	channelID, err := n.sessions.Channel(ctx, partyID)
	if err != nil {
		if !errors.Is(err, ErrNoChannel) {
			n.logger.Warn("channel lookup failed", "party", partyID, "error", err)
		}
		observability.Notifications.WithLabelValues(event, "dropped").Inc()
		return
	}
	n.Send(ctx, channelID, event, payload)
}
