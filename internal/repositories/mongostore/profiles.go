package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
)

type ProfileRepo struct {
	client    *mongo.Client
	profiles  *mongo.Collection
	usernames *mongo.Collection
}

func (r *ProfileRepo) Get(ctx context.Context, uid string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := r.profiles.FindOne(ctx, bson.M{"_id": uid}).Decode(&p); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *ProfileRepo) ResolveUsername(ctx context.Context, usernameLower string) (string, error) {
	var rec models.UsernameRecord
	if err := r.usernames.FindOne(ctx, bson.M{"_id": usernameLower}).Decode(&rec); err != nil {
		return "", mapErr(err)
	}
	return rec.UID, nil
}

func (r *ProfileRepo) Save(ctx context.Context, p *models.UserProfile) error {
	_, err := r.profiles.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	return mapErr(err)
}

// SaveWithUsername needs a replica set (transactions). The new mapping is
// upserted with a uid guard, so a name held by someone else collides on _id.
func (r *ProfileRepo) SaveWithUsername(ctx context.Context, p *models.UserProfile, previousLower string) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if previousLower != "" && previousLower != p.UsernameLower {
			if _, err := r.usernames.DeleteOne(sc, bson.M{"_id": previousLower, "uid": p.ID}); err != nil {
				return nil, err
			}
		}

		_, err := r.usernames.UpdateOne(sc,
			bson.M{"_id": p.UsernameLower, "uid": p.ID},
			bson.M{
				"$set":         bson.M{"uid": p.ID},
				"$setOnInsert": bson.M{"created_at": p.UpdatedAt},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, err
		}

		_, err = r.profiles.ReplaceOne(sc, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
		return nil, err
	})
	return mapErr(err)
}
