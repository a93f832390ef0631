package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

const MaxMessageLength = 2000

// MessageChannel appends messages and tracks read state.
type MessageChannel struct {
	conversations repositories.Conversations
	messages      repositories.Messages
	feed          ChangeFeed
	log           zerolog.Logger
	now           func() time.Time
}

func NewMessageChannel(conversations repositories.Conversations, messages repositories.Messages, feed ChangeFeed, log zerolog.Logger) *MessageChannel {
	return &MessageChannel{
		conversations: conversations,
		messages:      messages,
		feed:          feed,
		log:           log.With().Str("component", "messages").Logger(),
		now:           time.Now,
	}
}

// Send stores a message, confirms its time with the store and refreshes the
// conversation summary. Only the first write can fail the call; a failed
// confirm leaves the message pending and a failed summary write leaves the
// summary stale until the next send.
func (c *MessageChannel) Send(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message is longer than %d characters", ErrInvalidInput, MaxMessageLength)
	}

	conv, err := loadParticipantConversation(ctx, c.conversations, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
		SentAt:         models.Timestamp{Local: c.now().UTC()},
	}
	if err := c.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	log := c.log.With().Str("conversation_id", conv.ID).Str("message_id", msg.ID).Logger()

	if serverTime, err := c.messages.ConfirmSent(ctx, msg.ID); err != nil {
		log.Warn().Err(err).Msg("confirm send time failed; message stays pending")
	} else {
		msg.SentAt.Server = &serverTime
	}

	last := models.LastMessage{Text: text, SenderID: senderID, SentAt: msg.SentAt.Time()}
	if err := c.conversations.UpdateLastMessage(ctx, conv.ID, last, msg.SentAt.Time()); err != nil {
		log.Warn().Err(err).Msg("conversation summary update failed")
	}

	c.publish(ctx, conv)
	return msg, nil
}

// MarkMessagesFromSenderAsRead flips every unread message senderID wrote in
// the conversation, one write per message. It returns how many were flipped.
// A failure stops the batch; already flipped messages stay read and a retry
// picks up the rest.
func (c *MessageChannel) MarkMessagesFromSenderAsRead(ctx context.Context, conversationID, senderID, reader string) (int, error) {
	conv, err := loadParticipantConversation(ctx, c.conversations, conversationID, reader)
	if err != nil {
		return 0, err
	}
	if senderID == reader || !conv.HasParticipant(senderID) {
		return 0, fmt.Errorf("%w: sender must be the other participant", ErrInvalidInput)
	}

	msgs, err := c.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	now := c.now().UTC()
	flipped := 0
	for _, m := range msgs {
		if m.SenderID != senderID || m.Read {
			continue
		}
		if err := c.messages.MarkRead(ctx, m.ID, now); err != nil {
			if flipped > 0 {
				c.publish(ctx, conv)
			}
			return flipped, fmt.Errorf("mark message %s read: %w", m.ID, err)
		}
		flipped++
	}

	if flipped > 0 {
		c.publish(ctx, conv)
	}
	return flipped, nil
}

// ListMessages returns the conversation oldest first.
func (c *MessageChannel) ListMessages(ctx context.Context, conversationID, caller string) ([]models.Message, error) {
	conv, err := loadParticipantConversation(ctx, c.conversations, conversationID, caller)
	if err != nil {
		return nil, err
	}
	msgs, err := c.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	SortMessages(msgs)
	return msgs, nil
}

func (c *MessageChannel) publish(ctx context.Context, conv *models.Conversation) {
	topics := []string{MessagesTopic(conv.ID)}
	for _, p := range conv.Participants {
		topics = append(topics, ConversationsTopic(p))
	}
	if err := c.feed.Publish(ctx, topics...); err != nil {
		c.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("publish message change failed")
	}
}

// SortMessages orders by send time ascending; ties keep id order.
func SortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ti, tj := msgs[i].SentAt.Time(), msgs[j].SentAt.Time()
		if ti.Equal(tj) {
			return msgs[i].ID < msgs[j].ID
		}
		return ti.Before(tj)
	})
}
