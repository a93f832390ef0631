package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// PairKey is the conversation id for an unordered pair of users. The length
// of the first id leads the key so ids containing the separator cannot make
// two pairs share a key.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strconv.Itoa(len(ids[0])) + ":" + ids[0] + "_" + ids[1]
}

// ConversationDirectory finds or creates the single thread between two users.
type ConversationDirectory struct {
	conversations repositories.Conversations
	profiles      *ProfileService
	feed          ChangeFeed
	log           zerolog.Logger
	now           func() time.Time
}

func NewConversationDirectory(conversations repositories.Conversations, profiles *ProfileService, feed ChangeFeed, log zerolog.Logger) *ConversationDirectory {
	return &ConversationDirectory{
		conversations: conversations,
		profiles:      profiles,
		feed:          feed,
		log:           log.With().Str("component", "conversations").Logger(),
		now:           time.Now,
	}
}

// GetOrCreateConversation returns the id of the conversation between a and b.
// Existing threads are found by scanning a's conversations; a new one is keyed
// by PairKey so a concurrent creator collides on the id and both callers end
// up with the same thread.
func (d *ConversationDirectory) GetOrCreateConversation(ctx context.Context, a, b string) (string, error) {
	if a == "" {
		return "", ErrUnauthenticated
	}
	if b == "" || a == b {
		return "", fmt.Errorf("%w: a conversation needs two different users", ErrInvalidInput)
	}

	existing, err := d.conversations.ListByParticipant(ctx, a)
	if err != nil {
		return "", fmt.Errorf("list conversations: %w", err)
	}
	for _, c := range existing {
		if c.HasParticipant(b) {
			return c.ID, nil
		}
	}

	now := d.now().UTC()
	conv := &models.Conversation{
		ID:           PairKey(a, b),
		Participants: []string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = d.conversations.Insert(ctx, conv)
	if errors.Is(err, repositories.ErrDuplicate) {
		d.log.Debug().Str("conversation_id", conv.ID).Msg("conversation created concurrently")
		return d.existingPair(ctx, conv.ID, a, b)
	}
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	if err := d.feed.Publish(ctx, ConversationsTopic(a), ConversationsTopic(b)); err != nil {
		d.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("publish conversation change failed")
	}
	return conv.ID, nil
}

// existingPair re-reads the conversation that won the insert race and checks
// it really is the a/b thread.
func (d *ConversationDirectory) existingPair(ctx context.Context, id, a, b string) (string, error) {
	c, err := d.conversations.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("reload conversation: %w", err)
	}
	if !c.HasParticipant(a) || !c.HasParticipant(b) {
		return "", fmt.Errorf("conversation %s belongs to another pair", id)
	}
	return c.ID, nil
}

// GetOrCreateConversationByUsername resolves username before opening the thread.
func (d *ConversationDirectory) GetOrCreateConversationByUsername(ctx context.Context, caller, username string) (string, error) {
	if caller == "" {
		return "", ErrUnauthenticated
	}
	other, err := d.profiles.ResolveUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return d.GetOrCreateConversation(ctx, caller, other)
}

// GetConversation returns a conversation the caller takes part in.
func (d *ConversationDirectory) GetConversation(ctx context.Context, id, caller string) (*models.Conversation, error) {
	return loadParticipantConversation(ctx, d.conversations, id, caller)
}

func loadParticipantConversation(ctx context.Context, repo repositories.Conversations, id, caller string) (*models.Conversation, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	c, err := repo.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !c.HasParticipant(caller) {
		return nil, ErrForbidden
	}
	return c, nil
}
