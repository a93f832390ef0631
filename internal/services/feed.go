package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Topic helpers. A write publishes every topic whose derived views it changes.
func ConversationsTopic(uid string) string { return "conversations:" + uid }
func MessagesTopic(conversationID string) string { return "messages:" + conversationID }
func TypingTopic(conversationID string) string { return "typing:" + conversationID }

// Change is one notification. Err is set when the feed itself failed; the
// subscription stays open and later changes still arrive.
type Change struct {
	Topic string
	Err   error
}

// ChangeFeed tells watchers that data behind a topic changed. Payloads carry
// no data; watchers re-read.
type ChangeFeed interface {
	Publish(ctx context.Context, topics ...string) error
	Subscribe(topics ...string) *Subscription
}

const subscriptionBuffer = 8

// Subscription receives changes on C until Close.
type Subscription struct {
	C <-chan Change

	ch     chan Change
	topics []string
	hub    *hub
	once   sync.Once
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

// hub is the local fan-out registry shared by both feeds.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *hub) add(topics []string) *Subscription {
	ch := make(chan Change, subscriptionBuffer)
	s := &Subscription{C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		set, ok := h.subs[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[t] = set
		}
		set[s] = struct{}{}
	}
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range s.topics {
		set := h.subs[t]
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, t)
		}
	}
}

// fanOut delivers without blocking. A full buffer already holds a pending
// change, and watchers re-read everything, so dropping loses nothing.
func (h *hub) fanOut(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[c.Topic] {
		select {
		case s.ch <- c:
		default:
		}
	}
}

// broadcastErr reports a feed failure to every subscriber once.
func (h *hub) broadcastErr(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscription]struct{})
	for _, set := range h.subs {
		for s := range set {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			select {
			case s.ch <- Change{Err: err}:
			default:
			}
		}
	}
}

// LocalFeed is an in-process feed for a single instance.
type LocalFeed struct {
	hub *hub
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{hub: newHub()}
}

func (f *LocalFeed) Publish(ctx context.Context, topics ...string) error {
	for _, t := range topics {
		f.hub.fanOut(Change{Topic: t})
	}
	return nil
}

func (f *LocalFeed) Subscribe(topics ...string) *Subscription {
	return f.hub.add(topics)
}

const redisChangePrefix = "driveshare:change:"

// RedisFeed publishes through Redis pub/sub so every instance sees every
// write; each instance runs one pattern subscriber and fans out locally.
type RedisFeed struct {
	rdb     *redis.Client
	hub     *hub
	log     zerolog.Logger
	started sync.Once
}

func NewRedisFeed(rdb *redis.Client, log zerolog.Logger) *RedisFeed {
	return &RedisFeed{
		rdb: rdb,
		hub: newHub(),
		log: log.With().Str("component", "change_feed").Logger(),
	}
}

func (f *RedisFeed) Publish(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	pipe := f.rdb.Pipeline()
	for _, t := range topics {
		pipe.Publish(ctx, redisChangePrefix+t, "1")
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (f *RedisFeed) Subscribe(topics ...string) *Subscription {
	return f.hub.add(topics)
}

// Start launches the shared subscriber once; it stops with ctx.
func (f *RedisFeed) Start(ctx context.Context) {
	f.started.Do(func() {
		go f.run(ctx)
	})
}

func (f *RedisFeed) run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := f.rdb.PSubscribe(ctx, redisChangePrefix+"*")
			defer pubsub.Close()

			f.log.Info().Msg("change feed subscriber started")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					f.log.Warn().Err(err).Dur("backoff", backoff).Msg("change feed receive failed")
					f.hub.broadcastErr(err)
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second
				f.hub.fanOut(Change{Topic: strings.TrimPrefix(msg.Channel, redisChangePrefix)})
			}
		}()
	}
}
