package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// UnreadAggregator recounts a user's unread messages across every
// conversation. The count backs a badge, so failures read as zero.
type UnreadAggregator struct {
	conversations repositories.Conversations
	messages      repositories.Messages
	feed          ChangeFeed
	log           zerolog.Logger
}

func NewUnreadAggregator(conversations repositories.Conversations, messages repositories.Messages, feed ChangeFeed, log zerolog.Logger) *UnreadAggregator {
	return &UnreadAggregator{
		conversations: conversations,
		messages:      messages,
		feed:          feed,
		log:           log.With().Str("component", "unread").Logger(),
	}
}

// CountUnread is a full recount; any read failure yields 0.
func (u *UnreadAggregator) CountUnread(ctx context.Context, uid string) int {
	if uid == "" {
		return 0
	}
	convs, err := u.conversations.ListByParticipant(ctx, uid)
	if err != nil {
		u.log.Warn().Err(err).Str("uid", uid).Msg("unread count: list conversations failed")
		return 0
	}

	total := 0
	for _, c := range convs {
		n, err := u.countIn(ctx, c.ID, uid)
		if err != nil {
			u.log.Warn().Err(err).Str("uid", uid).Str("conversation_id", c.ID).Msg("unread count: list messages failed")
			return 0
		}
		total += n
	}
	return total
}

// CountUnreadInConversation counts messages addressed to uid in one thread.
func (u *UnreadAggregator) CountUnreadInConversation(ctx context.Context, conversationID, uid string) int {
	n, err := u.countIn(ctx, conversationID, uid)
	if err != nil {
		u.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("unread count failed")
		return 0
	}
	return n
}

func (u *UnreadAggregator) countIn(ctx context.Context, conversationID, uid string) (int, error) {
	msgs, err := u.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return countUnreadFor(msgs, uid), nil
}

func countUnreadFor(msgs []models.Message, uid string) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID != uid && !m.Read {
			n++
		}
	}
	return n
}

// WatchUnreadCount delivers the count now and again whenever it changes.
func (u *UnreadAggregator) WatchUnreadCount(ctx context.Context, uid string, cb func(int)) (*Watch, error) {
	if uid == "" {
		return nil, ErrUnauthenticated
	}
	sub := u.feed.Subscribe(ConversationsTopic(uid))

	return startWatch(ctx, func(ctx context.Context) {
		defer sub.Close()

		last := -1
		refresh := func() {
			n := u.CountUnread(ctx, uid)
			if ctx.Err() != nil || n == last {
				return
			}
			last = n
			cb(n)
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.C:
				if !ok {
					return
				}
				if change.Err != nil {
					u.log.Warn().Err(change.Err).Str("uid", uid).Msg("unread watch feed error")
					continue
				}
				refresh()
			}
		}
	}), nil
}
