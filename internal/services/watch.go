package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ID           string               `json:"id"`
	Other        models.PublicProfile `json:"other"`
	LastMessage  *models.LastMessage  `json:"last_message,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
	UnreadCount  int                  `json:"unread_count"`
	MessageCount int                  `json:"message_count"`
}

// Watch is a running subscription. Stop ends it.
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startWatch(ctx context.Context, run func(ctx context.Context)) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		run(ctx)
	}()
	return w
}

// Stop cancels the watch, releases its feed subscription and waits until no
// callback is running. It must not be called from inside the callback; cancel
// the parent context there instead.
func (w *Watch) Stop() {
	w.cancel()
	<-w.done
}

// Done is closed once the watch has fully stopped.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Watcher keeps derived views current by recomputing them whenever the
// change feed reports a write behind them.
type Watcher struct {
	conversations repositories.Conversations
	messages      repositories.Messages
	profiles      *ProfileService
	feed          ChangeFeed
	log           zerolog.Logger
}

func NewWatcher(conversations repositories.Conversations, messages repositories.Messages, profiles *ProfileService, feed ChangeFeed, log zerolog.Logger) *Watcher {
	return &Watcher{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		feed:          feed,
		log:           log.With().Str("component", "watcher").Logger(),
	}
}

// ListConversationSummaries computes the inbox once.
func (w *Watcher) ListConversationSummaries(ctx context.Context, uid string) ([]ConversationSummary, error) {
	if uid == "" {
		return nil, ErrUnauthenticated
	}
	return w.summarize(ctx, uid, make(map[string]models.PublicProfile))
}

// WatchConversations delivers the inbox now and after every change that
// alters it. Lists equal to the last delivery by id order, unread count and
// message count are not redelivered. On errors the last good list is
// delivered again.
func (w *Watcher) WatchConversations(ctx context.Context, uid string, cb func([]ConversationSummary)) (*Watch, error) {
	if uid == "" {
		return nil, ErrUnauthenticated
	}
	sub := w.feed.Subscribe(ConversationsTopic(uid))
	log := w.log.With().Str("uid", uid).Logger()

	return startWatch(ctx, func(ctx context.Context) {
		defer sub.Close()

		others := make(map[string]models.PublicProfile)
		var (
			last      []ConversationSummary
			lastSig   string
			delivered bool
		)
		redeliver := func() {
			if delivered && ctx.Err() == nil {
				cb(last)
			}
		}
		refresh := func() {
			summaries, err := w.summarize(ctx, uid, others)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn().Err(err).Msg("conversation watch refresh failed")
				redeliver()
				return
			}
			sig := summarySignature(summaries)
			if delivered && sig == lastSig {
				return
			}
			last, lastSig, delivered = summaries, sig, true
			cb(summaries)
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
					log.Warn().Err(change.Err).Msg("conversation watch feed error")
					redeliver()
					continue
				}
				refresh()
			}
		}
	}), nil
}

// WatchMessages delivers the conversation oldest first now and after every
// change. viewer must be a participant.
func (w *Watcher) WatchMessages(ctx context.Context, conversationID, viewer string, cb func([]models.Message)) (*Watch, error) {
	if _, err := loadParticipantConversation(ctx, w.conversations, conversationID, viewer); err != nil {
		return nil, err
	}
	sub := w.feed.Subscribe(MessagesTopic(conversationID))
	log := w.log.With().Str("conversation_id", conversationID).Logger()

	return startWatch(ctx, func(ctx context.Context) {
		defer sub.Close()

		var (
			last      []models.Message
			delivered bool
		)
		redeliver := func() {
			if delivered && ctx.Err() == nil {
				cb(last)
			}
		}
		refresh := func() {
			msgs, err := w.messages.ListByConversation(ctx, conversationID)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn().Err(err).Msg("message watch refresh failed")
				redeliver()
				return
			}
			SortMessages(msgs)
			last, delivered = msgs, true
			cb(msgs)
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
					log.Warn().Err(change.Err).Msg("message watch feed error")
					redeliver()
					continue
				}
				refresh()
			}
		}
	}), nil
}

// summarize builds the inbox. others caches the other participants' profiles
// for the lifetime of one watch.
func (w *Watcher) summarize(ctx context.Context, uid string, others map[string]models.PublicProfile) ([]ConversationSummary, error) {
	convs, err := w.conversations.ListByParticipant(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		otherID := c.OtherParticipant(uid)

		other, ok := others[otherID]
		if !ok {
			var lerr error
			other, lerr = w.profiles.Lookup(ctx, otherID)
			if lerr != nil {
				w.log.Warn().Err(lerr).Str("uid", otherID).Msg("profile lookup failed")
			} else {
				others[otherID] = other
			}
		}

		unread, err := w.messages.ListUnread(ctx, c.ID, otherID)
		if err != nil {
			return nil, fmt.Errorf("count unread in %s: %w", c.ID, err)
		}
		total, err := w.messages.CountByConversation(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("count messages in %s: %w", c.ID, err)
		}

		out = append(out, ConversationSummary{
			ID:           c.ID,
			Other:        other,
			LastMessage:  c.LastMessage,
			UpdatedAt:    c.LastActivity(),
			UnreadCount:  len(unread),
			MessageCount: total,
		})
	}

	SortSummaries(out)
	return out, nil
}

// SortSummaries orders by last activity, newest first; ties keep id order.
func SortSummaries(s []ConversationSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}

func summarySignature(s []ConversationSummary) string {
	var b strings.Builder
	for _, c := range s {
		b.WriteString(c.ID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c.UnreadCount))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c.MessageCount))
		b.WriteByte(';')
	}
	return b.String()
}
