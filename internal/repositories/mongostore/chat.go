package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

type ConversationRepo struct {
	col *mongo.Collection
}

// ListByParticipant returns the user's conversations unordered; callers sort.
func (r *ConversationRepo) ListByParticipant(ctx context.Context, uid string) ([]models.Conversation, error) {
	return findAll[models.Conversation](ctx, r.col, bson.M{"participants": uid})
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ConversationRepo) Insert(ctx context.Context, c *models.Conversation) error {
	_, err := r.col.InsertOne(ctx, c)
	return mapErr(err)
}

func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, id string, last models.LastMessage, updatedAt time.Time) error {
	return requireMatch(r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"last_message": last,
			"updated_at":   updatedAt,
		},
	}))
}

type MessageRepo struct {
	col *mongo.Collection
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.col.InsertOne(ctx, m)
	return mapErr(err)
}

// ConfirmSent lets the server stamp sent_at.server and reads it back.
func (r *MessageRepo) ConfirmSent(ctx context.Context, id string) (time.Time, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"sent_at": 1})

	var out struct {
		SentAt models.Timestamp `bson:"sent_at"`
	}
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$currentDate": bson.M{"sent_at.server": true}},
		opts,
	).Decode(&out)
	if err != nil {
		return time.Time{}, mapErr(err)
	}
	if out.SentAt.Server == nil {
		return time.Time{}, repositories.ErrNotFound
	}
	return out.SentAt.Server.UTC(), nil
}

// ListByConversation is unordered; callers sort by send time.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	return findAll[models.Message](ctx, r.col, bson.M{"conversation_id": conversationID})
}

func (r *MessageRepo) ListUnread(ctx context.Context, conversationID, senderID string) ([]models.Message, error) {
	return findAll[models.Message](ctx, r.col, bson.M{
		"conversation_id": conversationID,
		"sender_id":       senderID,
		"read":            false,
	})
}

func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	return int(n), err
}

func (r *MessageRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	return requireMatch(r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"read": true, "read_at": at},
	}))
}
