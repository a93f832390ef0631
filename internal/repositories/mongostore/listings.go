package mongostore

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// Planner failures that mean the sorted query has no usable index.
var missingIndexMarkers = []string{
	"sort exceeded memory limit",
	"no query solutions",
	"noqueryexecutionplans",
	"hint provided does not correspond to an existing index",
}

// IsMissingIndexError matches the query planner's index-related failures by text.
func IsMissingIndexError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range missingIndexMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

type ListingRepo struct {
	col *mongo.Collection
}

func (r *ListingRepo) Insert(ctx context.Context, l *models.CarListing) error {
	_, err := r.col.InsertOne(ctx, l)
	return mapErr(err)
}

func (r *ListingRepo) Update(ctx context.Context, l *models.CarListing) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": l.ID}, l)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id string) (*models.CarListing, error) {
	var l models.CarListing
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.CarListing, error) {
	return r.newestFirst(ctx, bson.M{"owner_id": ownerID})
}

func (r *ListingRepo) ListActive(ctx context.Context) ([]models.CarListing, error) {
	return r.newestFirst(ctx, bson.M{"status": models.CarActive})
}

// newestFirst asks the server to sort; when the planner refuses for lack of
// an index it refetches unordered and sorts here.
func (r *ListingRepo) newestFirst(ctx context.Context, filter bson.M) ([]models.CarListing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	out, err := findAll[models.CarListing](ctx, r.col, filter, opts)
	if err == nil {
		return out, nil
	}
	if !IsMissingIndexError(err) {
		return nil, err
	}

	out, err = findAll[models.CarListing](ctx, r.col, filter)
	if err != nil {
		return nil, err
	}
	models.SortListingsNewestFirst(out)
	return out, nil
}
