package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs map[string][]Envelope
	err  error
}

func (r *recordingSender) Deliver(_ context.Context, channelID string, msg Envelope) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[string][]Envelope)
	}
	r.msgs[channelID] = append(r.msgs[channelID], msg)
	return nil
}

func (r *recordingSender) count(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[channelID])
}

func TestNotifyPartyUsesLatestBinding(t *testing.T) {
	primary := &recordingSender{}
	n := NewNotifier(NewMemorySessions(), primary, nil)
	ctx := context.Background()

	_ = n.Bind(ctx, "rider-1", "c1")
	_ = n.Bind(ctx, "rider-1", "c2")
	n.NotifyParty(ctx, "rider-1", EventRideConfirmed, map[string]string{"id": "r1"})

	if primary.count("c1") != 0 || primary.count("c2") != 1 {
		t.Fatalf("expected delivery on c2 only, got c1=%d c2=%d", primary.count("c1"), primary.count("c2"))
	}
}

func TestNotifyPartyUnboundIsDropped(t *testing.T) {
	primary := &recordingSender{}
	n := NewNotifier(NewMemorySessions(), primary, nil)
	n.NotifyParty(context.Background(), "ghost", EventRideStarted, nil)
	if len(primary.msgs) != 0 {
		t.Fatalf("expected no delivery, got %v", primary.msgs)
	}
}

func TestSendMirrorsOnlyDeliveredEvents(t *testing.T) {
	mirror := &recordingSender{}
	stale := &recordingSender{err: ErrNoSession}
	n := NewNotifier(NewMemorySessions(), stale, nil, mirror)
	n.Send(context.Background(), "c1", EventRideEnded, nil)
	if mirror.count("c1") != 0 {
		t.Fatal("mirror should not receive dropped events")
	}

	primary := &recordingSender{}
	n = NewNotifier(NewMemorySessions(), primary, nil, mirror)
	n.Send(context.Background(), "c1", EventRideEnded, nil)
	if mirror.count("c1") != 1 {
		t.Fatal("mirror should receive delivered events")
	}
}

func TestSendSwallowsFailures(t *testing.T) {
	n := NewNotifier(NewMemorySessions(), &recordingSender{err: errors.New("boom")}, nil)
	// must not panic or block
	n.Send(context.Background(), "c1", EventNewRide, nil)
}

func TestWSRegistryDeliver(t *testing.T) {
	reg := NewWSRegistry()
	ready := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		reg.Add("c1", conn)
		close(ready)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	<-ready

	if err := reg.Deliver(context.Background(), "c1", Envelope{Event: EventNewRide, Data: map[string]string{"id": "r1"}}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event != EventNewRide || got.Data["id"] != "r1" {
		t.Fatalf("unexpected message %+v", got)
	}

	reg.Remove("c1")
	if err := reg.Deliver(context.Background(), "c1", Envelope{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestPushSinkPostsEnvelope(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewPushSink(srv.URL, "secret")
	if err := sink.Deliver(context.Background(), "c9", Envelope{Event: EventRideStarted}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if body["channel"] != "c9" || body["event"] != EventRideStarted {
		t.Fatalf("unexpected body %v", body)
	}
}
