package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// MemoryStore keeps rides in a map. Records are copied in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]models.Ride
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]models.Ride), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrDuplicateRide
	}
	cp := *r
	cp.Rider, cp.Driver = nil, nil
	m.rides[r.ID] = cp
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string, opts FindOptions) (*models.Ride, error) {
	m.mu.RLock()
	r, ok := m.rides[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRideNotFound
	}
	if !opts.IncludeOTP {
		r.OTP = ""
	}
	return &r, nil
}

func (m *MemoryStore) UpdateIfStatus(ctx context.Context, id string, expected models.RideStatus, p Patch) (*models.Ride, error) {
	if err := validatePatch(expected, p); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	if r.Status != expected {
		return nil, ErrStatusConflict
	}
	if err := p.apply(&r, m.now()); err != nil {
		return nil, err
	}
	m.rides[id] = r
	return &r, nil
}

// MemoryDirectory is an in-process party directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	parties map[string]models.Party
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{parties: make(map[string]models.Party)}
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*models.Party, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.parties[id]
	if !ok {
		return nil, ErrPartyNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) Put(ctx context.Context, p *models.Party) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parties[p.ID] = *p
	return nil
}
