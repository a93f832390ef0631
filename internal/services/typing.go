package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// TypingTTL is how long a typing flag survives without being refreshed.
const TypingTTL = 8 * time.Second

const typingKeyPrefix = "typing:"

func typingKey(conversationID, uid string) string {
	return typingKeyPrefix + conversationID + ":" + uid
}

// TypingTracker keeps short-lived "is typing" flags. Flags live in Redis with
// a TTL; without a client they live in process memory.
type TypingTracker struct {
	rdb           *redis.Client
	conversations repositories.Conversations
	feed          ChangeFeed
	log           zerolog.Logger
	now           func() time.Time

	mu    sync.Mutex
	local map[string]map[string]time.Time // conversation -> uid -> expiry
}

func NewTypingTracker(rdb *redis.Client, conversations repositories.Conversations, feed ChangeFeed, log zerolog.Logger) *TypingTracker {
	return &TypingTracker{
		rdb:           rdb,
		conversations: conversations,
		feed:          feed,
		log:           log.With().Str("component", "typing").Logger(),
		now:           time.Now,
		local:         make(map[string]map[string]time.Time),
	}
}

// SetTyping sets or clears uid's flag in a conversation uid takes part in.
func (t *TypingTracker) SetTyping(ctx context.Context, conversationID, uid string, typing bool) error {
	if _, err := loadParticipantConversation(ctx, t.conversations, conversationID, uid); err != nil {
		return err
	}

	if t.rdb != nil {
		var err error
		if typing {
			err = t.rdb.Set(ctx, typingKey(conversationID, uid), "1", TypingTTL).Err()
		} else {
			err = t.rdb.Del(ctx, typingKey(conversationID, uid)).Err()
		}
		if err != nil {
			return fmt.Errorf("set typing: %w", err)
		}
	} else {
		t.setLocal(conversationID, uid, typing)
	}

	if err := t.feed.Publish(ctx, TypingTopic(conversationID)); err != nil {
		t.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("publish typing change failed")
	}
	return nil
}

func (t *TypingTracker) setLocal(conversationID, uid string, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.local[conversationID]
	if !typing {
		delete(users, uid)
		if len(users) == 0 {
			delete(t.local, conversationID)
		}
		return
	}
	if users == nil {
		users = make(map[string]time.Time)
		t.local[conversationID] = users
	}
	users[uid] = t.now().Add(TypingTTL)
}

// Typing lists the uids currently typing in a conversation, except exclude.
func (t *TypingTracker) Typing(ctx context.Context, conversationID, exclude string) ([]string, error) {
	var uids []string
	if t.rdb != nil {
		prefix := typingKeyPrefix + conversationID + ":"
		iter := t.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			uids = append(uids, strings.TrimPrefix(iter.Val(), prefix))
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list typing: %w", err)
		}
	} else {
		now := t.now()
		t.mu.Lock()
		for uid, expiry := range t.local[conversationID] {
			if now.Before(expiry) {
				uids = append(uids, uid)
			} else {
				delete(t.local[conversationID], uid)
			}
		}
		t.mu.Unlock()
	}

	out := uids[:0]
	for _, uid := range uids {
		if uid != exclude {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out, nil
}

// WatchTyping delivers the other participants' typing list whenever it
// changes. Flags expire without a notification, so the list is also polled.
func (t *TypingTracker) WatchTyping(ctx context.Context, conversationID, viewer string, cb func([]string)) (*Watch, error) {
	if _, err := loadParticipantConversation(ctx, t.conversations, conversationID, viewer); err != nil {
		return nil, err
	}
	sub := t.feed.Subscribe(TypingTopic(conversationID))

	return startWatch(ctx, func(ctx context.Context) {
		defer sub.Close()

		ticker := time.NewTicker(TypingTTL / 4)
		defer ticker.Stop()

		last := "-"
		refresh := func() {
			uids, err := t.Typing(ctx, conversationID, viewer)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				t.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("typing watch refresh failed")
				return
			}
			if sig := strings.Join(uids, ","); sig != last {
				last = sig
				cb(uids)
			}
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			case change, ok := <-sub.C:
				if !ok {
					return
				}
				if change.Err == nil {
					refresh()
				}
			}
		}
	}), nil
}
