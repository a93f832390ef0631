package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
)

// ListConversations returns the caller's conversations with the other
// participant's profile, the unread count and the message count.
func (a *API) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summaries, err := a.Watcher.ListConversationSummaries(ctx, auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"conversations": summaries})
}

// StartConversation opens (or returns) the caller's conversation with another
// user, addressed by user_id or username.
func (a *API) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	caller := auth.UID(ctx)
	var (
		id  string
		err error
	)
	switch {
	case strings.TrimSpace(req.UserID) != "":
		id, err = a.Conversations.GetOrCreateConversation(ctx, caller, strings.TrimSpace(req.UserID))
	case strings.TrimSpace(req.Username) != "":
		id, err = a.Conversations.GetOrCreateConversationByUsername(ctx, caller, req.Username)
	default:
		writeFailure(w, http.StatusBadRequest, "user_id or username is required")
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"conversation_id": id})
}

func (a *API) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	conv, err := a.Conversations.GetConversation(ctx, chi.URLParam(r, "id"), auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"conversation": conv})
}

// ListMessages returns the conversation history oldest first.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msgs, err := a.Messages.ListMessages(ctx, chi.URLParam(r, "id"), auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"messages": msgs})
}

func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msg, err := a.Messages.Send(ctx, chi.URLParam(r, "id"), auth.UID(ctx), req.Text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"message": msg})
}

// MarkRead marks the other participant's messages as read. sender_id may be
// omitted in a two-person conversation.
func (a *API) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID string `json:"sender_id"`
	}
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	convID, caller := chi.URLParam(r, "id"), auth.UID(ctx)
	sender := req.SenderID
	if sender == "" {
		conv, err := a.Conversations.GetConversation(ctx, convID, caller)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sender = conv.OtherParticipant(caller)
	}

	n, err := a.Messages.MarkMessagesFromSenderAsRead(ctx, convID, sender, caller)
	if err != nil {
		a.Log.Warn().Err(err).Str("conversation_id", convID).Int("marked", n).Msg("mark read stopped early")
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"marked": n})
}

// SetTyping raises or clears the caller's typing flag.
func (a *API) SetTyping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Typing bool `json:"typing"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := a.Typing.SetTyping(ctx, chi.URLParam(r, "id"), auth.UID(ctx), req.Typing); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"typing": req.Typing})
}

func (a *API) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, envelope{"count": a.Unread.CountUnread(ctx, auth.UID(ctx))})
}
