package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/models"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	eventJoin           = "join"
	eventJoined         = "joined"
	eventUpdateLocation = "update-location"
	eventError          = "error"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinData struct {
	PartyID string           `json:"party_id"`
	Role    models.PartyRole `json:"role"`
}

type locationData struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	RideID string  `json:"ride_id,omitempty"`
}

type driverLocation struct {
	RideID string  `json:"ride_id"`
	Driver string  `json:"driver"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// wsClient is the per-connection state. The identity is fixed by the token
// when auth is on, otherwise by the last join message.
type wsClient struct {
	channelID string
	session   *dispatch.WSSession
	identity  *auth.Identity
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var identity *auth.Identity
	if s.Auth != nil {
		id, err := s.Auth.Verify(r.URL.Query().Get("token"))
		if err != nil {
			s.writeError(w, errUnauthorized)
			return
		}
		identity = &id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{channelID: uuid.NewString(), identity: identity}
	c.session = s.Sessions.Add(c.channelID, conn)
	defer func() {
		s.Sessions.Remove(c.channelID)
		_ = conn.Close()
	}()

	// the request context ends with the handler; bindings must outlive a
	// slow client read
	ctx := context.WithoutCancel(r.Context())
	if identity != nil {
		s.bind(ctx, c)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(c, done)

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", "channel", c.channelID, "error", err)
			}
			return
		}
		if err := s.handleWSMessage(ctx, c, msg); err != nil {
			_ = c.session.Send(dispatch.Envelope{Event: eventError, Data: map[string]string{"message": err.Error()}})
		}
	}
}

func (s *Server) keepAlive(c *wsClient, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.session.Ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWSMessage(ctx context.Context, c *wsClient, msg inbound) error {
	switch msg.Event {
	case eventJoin:
		if s.Auth != nil {
			return errors.New("identity comes from the token")
		}
		var j joinData
		if err := json.Unmarshal(msg.Data, &j); err != nil || j.PartyID == "" || !j.Role.Valid() {
			return errors.New("join needs party_id and role")
		}
		c.identity = &auth.Identity{PartyID: j.PartyID, Role: j.Role}
		s.bind(ctx, c)
		return nil

	case eventUpdateLocation:
		if c.identity == nil || c.identity.Role != models.RoleDriver {
			return errors.New("only joined drivers can update location")
		}
		var loc locationData
		if err := json.Unmarshal(msg.Data, &loc); err != nil {
			return errors.New("update-location needs lat and lng")
		}
		d := models.Driver{ID: c.identity.PartyID, Loc: models.Coord{Lat: loc.Lat, Lon: loc.Lng}, Online: true}
		if err := s.Locations.Update(ctx, d); err != nil {
			return err
		}
		if loc.RideID != "" {
			s.forwardLocation(ctx, d, loc.RideID)
		}
		return nil
	}
	return errors.New("unknown event " + msg.Event)
}

func (s *Server) bind(ctx context.Context, c *wsClient) {
	if err := s.Notifier.Bind(ctx, c.identity.PartyID, c.channelID); err != nil {
		s.logger.Warn("session bind failed", "party", c.identity.PartyID, "error", err)
		_ = c.session.Send(dispatch.Envelope{Event: eventError, Data: map[string]string{"message": "join failed"}})
		return
	}
	s.logger.Info("party joined", "party", c.identity.PartyID, "role", c.identity.Role, "channel", c.channelID)
	_ = c.session.Send(dispatch.Envelope{Event: eventJoined, Data: map[string]string{"channel_id": c.channelID}})
}

// forwardLocation relays the driver's position to the rider of a ride the
// driver is assigned to and which has not finished.
func (s *Server) forwardLocation(ctx context.Context, d models.Driver, rideID string) {
	rd, err := s.Rides.GetRide(ctx, rideID, false)
	if err != nil {
		s.logger.Debug("location not forwarded", "ride_id", rideID, "error", err)
		return
	}
	if rd.DriverID != d.ID || (rd.Status != models.StatusAccepted && rd.Status != models.StatusOngoing) {
		return
	}
	s.Notifier.NotifyParty(ctx, rd.RiderID, dispatch.EventDriverLocation, driverLocation{
		RideID: rd.ID,
		Driver: d.ID,
		Lat:    d.Loc.Lat,
		Lng:    d.Loc.Lon,
	})
}
