package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
)

type CarMakeRepo struct {
	col *mongo.Collection
}

func (r *CarMakeRepo) List(ctx context.Context) ([]models.CarMake, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	return findAll[models.CarMake](ctx, r.col, bson.M{}, opts)
}

func (r *CarMakeRepo) InsertMany(ctx context.Context, makes []models.CarMake) error {
	if len(makes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(makes))
	for i := range makes {
		docs[i] = makes[i]
	}
	_, err := r.col.InsertMany(ctx, docs)
	return mapErr(err)
}
