package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFeed_DeliversSubscribedTopics(t *testing.T) {
	feed := NewLocalFeed()
	ctx := context.Background()

	sub := feed.Subscribe(ConversationsTopic("u1"), MessagesTopic("c1"))
	defer sub.Close()

	require.NoError(t, feed.Publish(ctx, ConversationsTopic("u2"), MessagesTopic("c1")))
	got := recv(t, sub.C)
	assert.Equal(t, MessagesTopic("c1"), got.Topic)
	noRecv(t, sub.C)
}

func TestLocalFeed_FullBufferDropsWithoutBlocking(t *testing.T) {
	feed := NewLocalFeed()
	ctx := context.Background()
	sub := feed.Subscribe("t")
	defer sub.Close()

	for i := 0; i < subscriptionBuffer*3; i++ {
		require.NoError(t, feed.Publish(ctx, "t"))
	}
	assert.Len(t, sub.C, subscriptionBuffer)
}

func TestSubscription_Close(t *testing.T) {
	feed := NewLocalFeed()
	sub := feed.Subscribe("t")
	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	require.NoError(t, feed.Publish(context.Background(), "t"))
	assert.Empty(t, feed.hub.subs)
}

func TestHub_BroadcastErrReachesEachSubscriberOnce(t *testing.T) {
	feed := NewLocalFeed()
	sub := feed.Subscribe("a", "b")
	defer sub.Close()

	boom := errors.New("boom")
	feed.hub.broadcastErr(boom)

	got := recv(t, sub.C)
	assert.ErrorIs(t, got.Err, boom)
	noRecv(t, sub.C)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisFeed_PublishReachesLocalSubscribers(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewRedisFeed(rdb, zerolog.Nop())
	feed.Start(ctx)

	sub := feed.Subscribe(ConversationsTopic("u1"))
	defer sub.Close()

	// The pattern subscriber starts asynchronously; keep publishing until it
	// is listening.
	require.Eventually(t, func() bool {
		if err := feed.Publish(ctx, ConversationsTopic("u1")); err != nil {
			return false
		}
		select {
		case c := <-sub.C:
			return c.Topic == ConversationsTopic("u1") && c.Err == nil
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRedisFeed_PublishNothing(t *testing.T) {
	_, rdb := newTestRedis(t)
	feed := NewRedisFeed(rdb, zerolog.Nop())
	assert.NoError(t, feed.Publish(context.Background()))
}
