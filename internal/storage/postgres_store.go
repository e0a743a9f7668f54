package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const rideColumns = `id, rider_id, driver_id, pickup, destination, vehicle_class, fare, status, otp,
	distance_meters, duration_seconds, payment_id, order_id, payment_signature, created_at, updated_at`

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// DB exposes the pool so the party directory can share it.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations in file-name order. Every
// statement is idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return names, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	pay := r.Payment
	if pay == nil {
		pay = &models.Payment{}
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		r.ID, r.RiderID, r.DriverID, r.Pickup, r.Destination, string(r.VehicleClass), r.Fare, string(r.Status), r.OTP,
		r.DistanceMeters, r.DurationSeconds, pay.PaymentID, pay.OrderID, pay.Signature, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id string, opts FindOptions) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ride %s: %w", id, err)
	}
	if !opts.IncludeOTP {
		r.OTP = ""
	}
	return r, nil
}

// UpdateIfStatus is a single compare-and-swap statement on status. The
// driver guard keeps an assigned driver from being overwritten.
func (p *PostgresStore) UpdateIfStatus(ctx context.Context, id string, expected models.RideStatus, patch Patch) (*models.Ride, error) {
	if err := validatePatch(expected, patch); err != nil {
		return nil, err
	}
	pay := patch.Payment
	if pay == nil {
		pay = &models.Payment{}
	}
	row := p.db.QueryRowContext(ctx, `UPDATE rides SET
		status = COALESCE(NULLIF($3::text, ''), status),
		driver_id = COALESCE(NULLIF($4::text, ''), driver_id),
		payment_id = COALESCE(NULLIF($5::text, ''), payment_id),
		order_id = COALESCE(NULLIF($6::text, ''), order_id),
		payment_signature = COALESCE(NULLIF($7::text, ''), payment_signature),
		updated_at = $8
		WHERE id = $1 AND status = $2 AND ($4::text = '' OR driver_id = '' OR driver_id = $4::text)
		RETURNING `+rideColumns,
		id, string(expected), string(patch.Status), patch.DriverID, pay.PaymentID, pay.OrderID, pay.Signature, p.now())
	r, err := scanRide(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update ride %s: %w", id, err)
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ride %s: %w", id, err)
	}
	if !exists {
		return nil, ErrRideNotFound
	}
	return nil, ErrStatusConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var (
		r      models.Ride
		class  string
		status string
		pay    models.Payment
	)
	if err := row.Scan(&r.ID, &r.RiderID, &r.DriverID, &r.Pickup, &r.Destination, &class, &r.Fare, &status, &r.OTP,
		&r.DistanceMeters, &r.DurationSeconds, &pay.PaymentID, &pay.OrderID, &pay.Signature, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.VehicleClass = models.VehicleClass(class)
	r.Status = models.RideStatus(status)
	if !pay.Empty() {
		r.Payment = &pay
	}
	return &r, nil
}

// PostgresDirectory stores party profiles in the parties table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*models.Party, error) {
	var (
		p     models.Party
		role  string
		class string
	)
	err := d.db.QueryRowContext(ctx, `SELECT id, role, name, phone, vehicle_class, plate FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &role, &p.Name, &p.Phone, &class, &p.Plate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select party %s: %w", id, err)
	}
	p.Role = models.PartyRole(role)
	p.VehicleClass = models.VehicleClass(class)
	return &p, nil
}

func (d *PostgresDirectory) Put(ctx context.Context, p *models.Party) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO parties(id, role, name, phone, vehicle_class, plate)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, name = EXCLUDED.name, phone = EXCLUDED.phone,
			vehicle_class = EXCLUDED.vehicle_class, plate = EXCLUDED.plate`,
		p.ID, string(p.Role), p.Name, p.Phone, string(p.VehicleClass), p.Plate)
	if err != nil {
		return fmt.Errorf("upsert party %s: %w", p.ID, err)
	}
	return nil
}
