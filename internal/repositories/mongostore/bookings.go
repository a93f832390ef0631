package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
)

type BookingRepo struct {
	col *mongo.Collection
}

func (r *BookingRepo) Insert(ctx context.Context, b *models.Booking) error {
	_, err := r.col.InsertOne(ctx, b)
	return mapErr(err)
}

func (r *BookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

// UpdateStatus only matches while the stored status is still from.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	return requireMatch(r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	))
}

// list fetches unordered and sorts newest first in memory.
func (r *BookingRepo) list(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	out, err := findAll[models.Booking](ctx, r.col, filter)
	if err != nil {
		return nil, err
	}
	models.SortBookingsNewestFirst(out)
	return out, nil
}

func (r *BookingRepo) ListByRenter(ctx context.Context, renterID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"renter_id": renterID})
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"owner_id": ownerID})
}

func (r *BookingRepo) ListByCar(ctx context.Context, carID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"car_id": carID})
}
