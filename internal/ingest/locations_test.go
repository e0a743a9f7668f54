package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
)

type fakePublisher struct {
	got []models.Driver
	err error
}

func (f *fakePublisher) PublishLocation(_ context.Context, d models.Driver) error {
	f.got = append(f.got, d)
	return f.err
}

func TestTrackerUpdate(t *testing.T) {
	idx := geo.NewIndex()
	pub := &fakePublisher{}
	tr := &Tracker{Index: idx, Publisher: pub}
	ctx := context.Background()

	d := models.Driver{ID: "d1", Loc: models.Coord{Lat: 12.97, Lon: 77.59}, Rating: 4.8, Online: true}
	if err := tr.Update(ctx, d); err != nil {
		t.Fatal(err)
	}
	ids, err := idx.WithinRadius(ctx, 12.97, 77.59, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "d1" {
		t.Fatalf("driver not indexed: %v", ids)
	}
	if len(pub.got) != 1 || pub.got[0].Updated.IsZero() {
		t.Fatalf("expected stamped publish, got %+v", pub.got)
	}
}

func TestTrackerPublishFailureIgnored(t *testing.T) {
	tr := &Tracker{Index: geo.NewIndex(), Publisher: &fakePublisher{err: errors.New("broker down")}}
	d := models.Driver{ID: "d1", Loc: models.Coord{Lat: 1, Lon: 1}, Online: true}
	if err := tr.Update(context.Background(), d); err != nil {
		t.Fatalf("publish failure must not fail the update: %v", err)
	}
}

func TestTrackerRejectsInvalid(t *testing.T) {
	tr := &Tracker{Index: geo.NewIndex()}
	bad := []models.Driver{
		{Loc: models.Coord{Lat: 1, Lon: 1}},
		{ID: "d", Loc: models.Coord{Lat: 91, Lon: 1}},
		{ID: "d", Loc: models.Coord{Lat: 1, Lon: -181}},
		{ID: "d", Rating: 7},
	}
	for i, d := range bad {
		if err := tr.Update(context.Background(), d); !errors.Is(err, ErrInvalidLocation) {
			t.Fatalf("case %d: expected invalid location, got %v", i, err)
		}
	}
}

func TestDecode(t *testing.T) {
	d, err := Decode([]byte(`{"id":"d1","loc":{"lat":1.5,"lon":2.5},"rating":4,"online":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "d1" || d.Loc.Lon != 2.5 || !d.Online {
		t.Fatalf("unexpected driver %+v", d)
	}
	if _, err := Decode([]byte(`{"id":`)); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected invalid location, got %v", err)
	}
}
