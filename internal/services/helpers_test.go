package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/driveshare-backend/internal/repositories/memstore"
)

var baseTime = time.Date(2030, time.March, 1, 9, 0, 0, 0, time.UTC)

// tickClock moves forward one second per reading so every write gets a
// distinct timestamp.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: baseTime}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *tickClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memstore.Store
	events   *memstore.BookingEvents
	feed     *LocalFeed
	clock    *tickClock
	profiles *ProfileService
	dir      *ConversationDirectory
	msgs     *MessageChannel
	watcher  *Watcher
	unread   *UnreadAggregator
	typing   *TypingTracker
	listings *ListingService
	bookings *BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	store := memstore.New()
	clock := newTickClock()
	store.Now = clock.Now
	feed := NewLocalFeed()
	events := &memstore.BookingEvents{}

	f := &fixture{
		store:  store,
		events: events,
		feed:   feed,
		clock:  clock,
	}
	f.profiles = NewProfileService(store.Profiles(), nil, log)
	f.profiles.now = clock.Now
	f.dir = NewConversationDirectory(store.Conversations(), f.profiles, feed, log)
	f.dir.now = clock.Now
	f.msgs = NewMessageChannel(store.Conversations(), store.Messages(), feed, log)
	f.msgs.now = clock.Now
	f.watcher = NewWatcher(store.Conversations(), store.Messages(), f.profiles, feed, log)
	f.unread = NewUnreadAggregator(store.Conversations(), store.Messages(), feed, log)
	f.typing = NewTypingTracker(nil, store.Conversations(), feed, log)
	f.typing.now = clock.Now
	f.listings = NewListingService(store.Listings(), store.Bookings(), store.CarMakes(), f.profiles, nil, log)
	f.listings.now = clock.Now
	f.bookings = NewBookingService(store.Bookings(), store.Listings(), events, f.profiles, log)
	f.bookings.now = clock.Now
	return f
}

// onboard gives uid a finished profile with the given username.
func (f *fixture) onboard(t *testing.T, uid, username string) {
	t.Helper()
	_, err := f.profiles.SaveProfile(context.Background(), uid, ProfileInput{
		DisplayName:        "User " + username,
		Username:           username,
		CompleteOnboarding: true,
	})
	require.NoError(t, err)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func noRecv[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}
