package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/memstore"
)

func TestSendThenRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	msg, err := f.msgs.Send(ctx, convID, "u1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Text)
	assert.False(t, msg.Read)
	assert.True(t, msg.SentAt.Confirmed())

	assert.Equal(t, 1, f.unread.CountUnread(ctx, "u2"))
	assert.Equal(t, 0, f.unread.CountUnread(ctx, "u1"))

	summaries, err := f.watcher.ListConversationSummaries(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, 1, summaries[0].MessageCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "Hello", summaries[0].LastMessage.Text)
	assert.Equal(t, "u1", summaries[0].LastMessage.SenderID)

	n, err := f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.unread.CountUnread(ctx, "u2"))

	// Running it again changes nothing.
	n, err = f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs, err := f.msgs.ListMessages(ctx, convID, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
	assert.NotNil(t, msgs[0].ReadAt)
}

func TestSend_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = f.msgs.Send(ctx, convID, "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.msgs.Send(ctx, convID, "u1", strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.msgs.Send(ctx, convID, "u3", "hi")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.msgs.Send(ctx, convID, "", "hi")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	msg, err := f.msgs.Send(ctx, convID, "u1", "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", msg.Text)
}

func TestSend_InsertFailureFailsTheCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	boom := errors.New("write rejected")
	f.store.Fail(memstore.OpMessagesInsert, boom)

	_, err = f.msgs.Send(ctx, convID, "u1", "Hello")
	assert.ErrorIs(t, err, boom)

	c, err := f.dir.GetConversation(ctx, convID, "u1")
	require.NoError(t, err)
	assert.Nil(t, c.LastMessage)
}

func TestSend_ConfirmFailureLeavesMessagePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	f.store.Fail(memstore.OpMessagesConfirm, errors.New("timeout"))

	msg, err := f.msgs.Send(ctx, convID, "u1", "Hello")
	require.NoError(t, err)
	assert.False(t, msg.SentAt.Confirmed())
	assert.Equal(t, msg.SentAt.Local, msg.SentAt.Time())

	msgs, err := f.msgs.ListMessages(ctx, convID, "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].SentAt.Server)
}

func TestSend_SummaryFailureKeepsMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	f.store.Fail(memstore.OpConversationsUpdate, errors.New("conflict"))

	_, err = f.msgs.Send(ctx, convID, "u1", "Hello")
	require.NoError(t, err)

	c, err := f.dir.GetConversation(ctx, convID, "u1")
	require.NoError(t, err)
	assert.Nil(t, c.LastMessage, "summary stays stale")

	msgs, err := f.msgs.ListMessages(ctx, convID, "u2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMarkMessagesFromSenderAsRead_OnlyFlipsSendersMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.msgs.Send(ctx, convID, "u1", text)
		require.NoError(t, err)
	}
	_, err = f.msgs.Send(ctx, convID, "u2", "reply")
	require.NoError(t, err)

	n, err := f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, 0, f.unread.CountUnread(ctx, "u2"))
	assert.Equal(t, 1, f.unread.CountUnread(ctx, "u1"))
}

func TestMarkMessagesFromSenderAsRead_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u3")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u2", "u2")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u3", "u2")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkMessagesFromSenderAsRead_FailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.msgs.Send(ctx, convID, "u1", "ping")
		require.NoError(t, err)
	}

	boom := errors.New("write failed")
	f.store.Fail(memstore.OpMessagesMarkRead, boom)
	n, err := f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u2")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, f.unread.CountUnread(ctx, "u2"))

	f.store.Fail(memstore.OpMessagesMarkRead, nil)
	n, err = f.msgs.MarkMessagesFromSenderAsRead(ctx, convID, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListMessages_OrderedBySendTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID, err := f.dir.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	for _, text := range []string{"first", "second", "third"} {
		_, err := f.msgs.Send(ctx, convID, "u1", text)
		require.NoError(t, err)
	}

	msgs, err := f.msgs.ListMessages(ctx, convID, "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestSortMessages_PendingUsesLocalTime(t *testing.T) {
	server := baseTime.Add(2 * time.Second)
	msgs := []models.Message{
		{ID: "b", SentAt: models.Timestamp{Local: baseTime.Add(3 * time.Second)}},
		{ID: "a", SentAt: models.Timestamp{Local: baseTime, Server: &server}},
		{ID: "c", SentAt: models.Timestamp{Local: baseTime.Add(time.Second)}},
	}
	SortMessages(msgs)
	assert.Equal(t, "c", msgs[0].ID)
	assert.Equal(t, "a", msgs[1].ID)
	assert.Equal(t, "b", msgs[2].ID)
}
