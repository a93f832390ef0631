// Package mongostore implements the repositories on MongoDB.
package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// Collection names.
const (
	ConversationsCollection = "conversations"
	MessagesCollection      = "messages"
	ProfilesCollection      = "userProfiles"
	UsernamesCollection     = "usernames"
	ListingsCollection      = "carListings"
	BookingsCollection      = "bookings"
	CarMakesCollection      = "carMakes"
)

// Store hands out collection-bound repositories over one database.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Conversations() repositories.Conversations {
	return &ConversationRepo{col: s.db.Collection(ConversationsCollection)}
}

func (s *Store) Messages() repositories.Messages {
	return &MessageRepo{col: s.db.Collection(MessagesCollection)}
}

func (s *Store) Profiles() repositories.Profiles {
	return &ProfileRepo{
		client:    s.db.Client(),
		profiles:  s.db.Collection(ProfilesCollection),
		usernames: s.db.Collection(UsernamesCollection),
	}
}

func (s *Store) Listings() repositories.Listings {
	return &ListingRepo{col: s.db.Collection(ListingsCollection)}
}

func (s *Store) Bookings() repositories.Bookings {
	return &BookingRepo{col: s.db.Collection(BookingsCollection)}
}

func (s *Store) CarMakes() repositories.CarMakes {
	return &CarMakeRepo{col: s.db.Collection(CarMakesCollection)}
}

// EnsureIndexes configures the indexes the repositories query by.
// Called on startup from main after Mongo has connected.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		ConversationsCollection: {
			{Keys: bson.D{{Key: "participants", Value: 1}}, Options: options.Index().SetName("idx_participants")},
		},
		MessagesCollection: {
			{
				Keys: bson.D{
					{Key: "conversation_id", Value: 1},
					{Key: "sender_id", Value: 1},
					{Key: "read", Value: 1},
				},
				Options: options.Index().SetName("idx_conversation_sender_read"),
			},
		},
		ProfilesCollection: {
			{Keys: bson.D{{Key: "username_lower", Value: 1}}, Options: options.Index().SetName("idx_username_lower").SetSparse(true)},
		},
		ListingsCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}, Options: options.Index().SetName("idx_owner")},
			{
				Keys: bson.D{
					{Key: "status", Value: 1},
					{Key: "created_at", Value: -1},
				},
				Options: options.Index().SetName("idx_status_created"),
			},
		},
		BookingsCollection: {
			{Keys: bson.D{{Key: "renter_id", Value: 1}}, Options: options.Index().SetName("idx_renter")},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}, Options: options.Index().SetName("idx_owner")},
			{Keys: bson.D{{Key: "car_id", Value: 1}}, Options: options.Index().SetName("idx_car")},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// mapErr translates driver errors into repository errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repositories.ErrDuplicate
	}
	return err
}

// findAll decodes every document matching filter.
func findAll[T any](ctx context.Context, col *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// requireMatch turns a zero-match update into ErrNotFound.
func requireMatch(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
