package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/ride-hailing/internal/models"
)

// MongoStore keeps rides as documents in a single collection keyed by ride id.
type MongoStore struct {
	client *mongo.Client
	rides  *mongo.Collection
	now    func() time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := &MongoStore{client: client, rides: client.Database(database).Collection("rides"), now: time.Now}
	_, err = s.rides.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "rider_id", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *MongoStore) Create(ctx context.Context, r *models.Ride) error {
	_, err := s.rides.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateRide
	}
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.ID, err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string, opts FindOptions) (*models.Ride, error) {
	findOpts := options.FindOne()
	if !opts.IncludeOTP {
		findOpts.SetProjection(bson.M{"otp": 0})
	}
	var r models.Ride
	err := s.rides.FindOne(ctx, bson.M{"_id": id}, findOpts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ride %s: %w", id, err)
	}
	return &r, nil
}

// UpdateIfStatus relies on FindOneAndUpdate matching both id and status,
// which the server applies atomically to the single document.
func (s *MongoStore) UpdateIfStatus(ctx context.Context, id string, expected models.RideStatus, p Patch) (*models.Ride, error) {
	if err := validatePatch(expected, p); err != nil {
		return nil, err
	}
	filter := bson.M{"_id": id, "status": expected}
	set := bson.M{"updated_at": s.now()}
	if p.Status != "" {
		set["status"] = p.Status
	}
	if p.DriverID != "" {
		set["driver_id"] = p.DriverID
		filter["$or"] = bson.A{
			bson.M{"driver_id": bson.M{"$exists": false}},
			bson.M{"driver_id": ""},
			bson.M{"driver_id": p.DriverID},
		}
	}
	if !p.Payment.Empty() {
		if p.Payment.PaymentID != "" {
			set["payment.payment_id"] = p.Payment.PaymentID
		}
		if p.Payment.OrderID != "" {
			set["payment.order_id"] = p.Payment.OrderID
		}
		if p.Payment.Signature != "" {
			set["payment.signature"] = p.Payment.Signature
		}
	}

	var r models.Ride
	err := s.rides.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update ride %s: %w", id, err)
	}
	n, err := s.rides.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("count ride %s: %w", id, err)
	}
	if n == 0 {
		return nil, ErrRideNotFound
	}
	return nil, ErrStatusConflict
}

func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Directory returns a party directory in the same database.
func (s *MongoStore) Directory() *MongoDirectory {
	return &MongoDirectory{parties: s.rides.Database().Collection("parties")}
}

type MongoDirectory struct {
	parties *mongo.Collection
}

func (d *MongoDirectory) Get(ctx context.Context, id string) (*models.Party, error) {
	var p models.Party
	err := d.parties.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find party %s: %w", id, err)
	}
	return &p, nil
}

func (d *MongoDirectory) Put(ctx context.Context, p *models.Party) error {
	_, err := d.parties.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert party %s: %w", p.ID, err)
	}
	return nil
}
