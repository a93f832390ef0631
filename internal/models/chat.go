package models

import (
	"time"
)

// Conversation is a two-party thread. Participants is an unordered pair;
// LastMessage is a denormalized copy of the newest message.
type Conversation struct {
	ID           string       `bson:"_id" json:"id"`
	Participants []string     `bson:"participants" json:"participants"`
	LastMessage  *LastMessage `bson:"last_message,omitempty" json:"last_message,omitempty"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}

// LastMessage is the conversation summary snippet.
type LastMessage struct {
	Text     string    `bson:"text" json:"text"`
	SenderID string    `bson:"sender_id" json:"sender_id"`
	SentAt   time.Time `bson:"sent_at" json:"sent_at"`
}

// HasParticipant reports whether uid is one of the two participants.
func (c *Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not uid.
func (c *Conversation) OtherParticipant(uid string) string {
	for _, p := range c.Participants {
		if p != uid {
			return p
		}
	}
	return ""
}

// LastActivity is UpdatedAt, or CreatedAt for records that were never updated.
func (c *Conversation) LastActivity() time.Time {
	if c.UpdatedAt.IsZero() {
		return c.CreatedAt
	}
	return c.UpdatedAt
}

// Timestamp is a send time that starts as a local estimate and is later
// confirmed by the store. Server is nil until confirmed.
type Timestamp struct {
	Local  time.Time  `bson:"local" json:"local"`
	Server *time.Time `bson:"server,omitempty" json:"server,omitempty"`
}

// Confirmed reports whether the store has assigned its own time.
func (t Timestamp) Confirmed() bool {
	return t.Server != nil
}

// Time returns the authoritative time when known, else the local estimate.
func (t Timestamp) Time() time.Time {
	if t.Server != nil {
		return *t.Server
	}
	return t.Local
}

// Message belongs to exactly one conversation. Only Read/ReadAt ever change.
type Message struct {
	ID             string     `bson:"_id" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversation_id"`
	SenderID       string     `bson:"sender_id" json:"sender_id"`
	Text           string     `bson:"text" json:"text"`
	SentAt         Timestamp  `bson:"sent_at" json:"sent_at"`
	Read           bool       `bson:"read" json:"read"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}
