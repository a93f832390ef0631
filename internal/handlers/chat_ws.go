package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

const (
	wsReadLimit    = 64 * 1024
	wsPongWait     = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
	wsSendBuffer   = 16
)

// Event types sent to clients.
const (
	EventConversations = "conversations"
	EventMessages      = "messages"
	EventTyping        = "typing"
	EventUnread        = "unread"
	EventMessageAck    = "message_ack"
	EventError         = "error"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatEvent is one frame pushed to a client. Data holds the payload for Type:
// summaries, messages, typing uids, an unread count or the acked message.
type ChatEvent struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ChatClientMessage is a frame sent by the client on a conversation socket.
type ChatClientMessage struct {
	Type string `json:"type"` // "message", "typing_start", "typing_stop", "read", "ping"
	Text string `json:"text,omitempty"`
}

type watchStarter func(ctx context.Context, send func(ChatEvent)) ([]*services.Watch, error)

type clientHandler func(ctx context.Context, msg ChatClientMessage, send func(ChatEvent))

// serveWatches starts the watches before upgrading so permission errors are
// still plain HTTP responses, then pumps their deliveries to the socket until
// the client goes away.
func (a *API) serveWatches(w http.ResponseWriter, r *http.Request, start watchStarter, onClient clientHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan ChatEvent, wsSendBuffer)
	send := func(evt ChatEvent) {
		select {
		case out <- evt:
		case <-ctx.Done():
		}
	}

	watches, err := start(ctx, send)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer func() {
		cancel()
		for _, wt := range watches {
			wt.Stop()
		}
	}()

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Writer goroutine: the only writer of data frames on this connection
	go func() {
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(evt); err != nil {
					cancel()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop: handle client messages
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if onClient == nil {
			continue
		}
		var msg ChatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		onClient(ctx, msg, send)
	}
}

// ConversationsSocket streams the caller's inbox.
func (a *API) ConversationsSocket(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	a.serveWatches(w, r, func(ctx context.Context, send func(ChatEvent)) ([]*services.Watch, error) {
		wt, err := a.Watcher.WatchConversations(ctx, uid, func(s []services.ConversationSummary) {
			send(ChatEvent{Type: EventConversations, Data: nonNilSummaries(s)})
		})
		if err != nil {
			return nil, err
		}
		return []*services.Watch{wt}, nil
	}, nil)
}

// UnreadSocket streams the caller's total unread count.
func (a *API) UnreadSocket(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	a.serveWatches(w, r, func(ctx context.Context, send func(ChatEvent)) ([]*services.Watch, error) {
		wt, err := a.Unread.WatchUnreadCount(ctx, uid, func(n int) {
			send(ChatEvent{Type: EventUnread, Data: n})
		})
		if err != nil {
			return nil, err
		}
		return []*services.Watch{wt}, nil
	}, nil)
}

// ConversationSocket streams one conversation's messages and who is typing,
// and accepts message, typing and read frames from the client.
func (a *API) ConversationSocket(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	convID := chi.URLParam(r, "id")

	start := func(ctx context.Context, send func(ChatEvent)) ([]*services.Watch, error) {
		msgs, err := a.Watcher.WatchMessages(ctx, convID, uid, func(m []models.Message) {
			send(ChatEvent{Type: EventMessages, Data: nonNilMessages(m)})
		})
		if err != nil {
			return nil, err
		}
		typing, err := a.Typing.WatchTyping(ctx, convID, uid, func(t []string) {
			send(ChatEvent{Type: EventTyping, Data: nonNilStrings(t)})
		})
		if err != nil {
			msgs.Stop()
			return nil, err
		}
		return []*services.Watch{msgs, typing}, nil
	}

	onClient := func(ctx context.Context, msg ChatClientMessage, send func(ChatEvent)) {
		opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		switch msg.Type {
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				return
			}
			saved, err := a.Messages.Send(opCtx, convID, uid, msg.Text)
			if err != nil {
				reason := err.Error()
				if errorStatus(err) == http.StatusInternalServerError {
					a.Log.Warn().Err(err).Str("conversation_id", convID).Msg("socket send failed")
					reason = "failed to send message"
				}
				send(ChatEvent{Type: EventError, Error: reason})
				return
			}
			send(ChatEvent{Type: EventMessageAck, Data: saved})
		case "typing_start", "typing_stop":
			if err := a.Typing.SetTyping(opCtx, convID, uid, msg.Type == "typing_start"); err != nil {
				a.Log.Debug().Err(err).Str("conversation_id", convID).Msg("typing update failed")
			}
		case "read":
			conv, err := a.Conversations.GetConversation(opCtx, convID, uid)
			if err != nil {
				return
			}
			if _, err := a.Messages.MarkMessagesFromSenderAsRead(opCtx, convID, conv.OtherParticipant(uid), uid); err != nil {
				a.Log.Warn().Err(err).Str("conversation_id", convID).Msg("socket mark read failed")
			}
		case "ping":
		default:
			// Ignore unknown types
		}
	}

	a.serveWatches(w, r, start, onClient)
}

// JSON clients expect [] rather than null for empty lists.
func nonNilSummaries(s []services.ConversationSummary) []services.ConversationSummary {
	if s == nil {
		return []services.ConversationSummary{}
	}
	return s
}

func nonNilMessages(m []models.Message) []models.Message {
	if m == nil {
		return []models.Message{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
