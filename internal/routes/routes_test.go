package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/config"
	"github.com/AnshRaj112/driveshare-backend/internal/handlers"
	"github.com/AnshRaj112/driveshare-backend/internal/middleware"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/memstore"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

type testServer struct {
	*httptest.Server
	verifier *auth.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	st := memstore.New()
	feed := services.NewLocalFeed()
	cache := services.NewCache(nil)
	profiles := services.NewProfileService(st.Profiles(), cache, log)

	api := &handlers.API{
		Profiles:      profiles,
		Conversations: services.NewConversationDirectory(st.Conversations(), profiles, feed, log),
		Messages:      services.NewMessageChannel(st.Conversations(), st.Messages(), feed, log),
		Watcher:       services.NewWatcher(st.Conversations(), st.Messages(), profiles, feed, log),
		Unread:        services.NewUnreadAggregator(st.Conversations(), st.Messages(), feed, log),
		Typing:        services.NewTypingTracker(nil, st.Conversations(), feed, log),
		Listings:      services.NewListingService(st.Listings(), st.Bookings(), st.CarMakes(), profiles, cache, log),
		Bookings:      services.NewBookingService(st.Bookings(), st.Listings(), &memstore.BookingEvents{}, profiles, log),
		Log:           log,
	}
	v := auth.NewVerifier("test-secret", "")

	srv := httptest.NewServer(NewRouter(Deps{
		Config:   &config.Config{AllowedOrigins: []string{"http://localhost:3000"}, Environment: "test"},
		API:      api,
		Verifier: v,
		Global:   middleware.NewGlobalLimiter(),
		Reads:    middleware.NewReadLimiter(),
		Writes:   middleware.NewWindowLimiter(nil, middleware.WriteRateLimitMaxRequests, middleware.WriteRateLimitWindow, log),
		Log:      log,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, verifier: v}
}

func (s *testServer) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := s.verifier.Sign(auth.Identity{UID: uid}, time.Hour)
	require.NoError(t, err)
	return tok
}

// call sends a JSON request as uid (anonymous when empty) and decodes the reply.
func (s *testServer) call(t *testing.T, method, path, uid string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, uid))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (s *testServer) onboard(t *testing.T, uid, username string) {
	t.Helper()
	code, body := s.call(t, http.MethodPut, "/api/profile", uid, services.ProfileInput{
		DisplayName:        strings.ToUpper(username[:1]) + username[1:],
		Username:           username,
		CompleteOnboarding: true,
	})
	require.Equal(t, http.StatusOK, code, body)
}

func (s *testServer) dial(t *testing.T, path, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path + "?token=" + s.token(t, uid)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// next reads frames until one of type typ satisfies match.
func next(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ && (match == nil || match(f.Data)) {
			return f.Data
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)

	code, body := s.call(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])

	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/cars", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Public reads work anonymously.
	code, _ = s.call(t, http.MethodGet, "/api/car-makes", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestProfileFlow(t *testing.T) {
	s := newTestServer(t)

	code, body := s.call(t, http.MethodGet, "/api/profile", "alice-uid", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["profile"])

	s.onboard(t, "alice-uid", "alice")

	code, body = s.call(t, http.MethodGet, "/api/profile", "alice-uid", nil)
	require.Equal(t, http.StatusOK, code)
	profile := body["profile"].(map[string]interface{})
	assert.Equal(t, "alice", profile["username"])
	assert.Equal(t, true, profile["onboarding_completed"])

	code, body = s.call(t, http.MethodPost, "/api/profile/check-username", "bob-uid", map[string]string{"username": "ALICE"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["available"])

	code, _ = s.call(t, http.MethodPost, "/api/profile/check-username", "bob-uid", map[string]string{"username": "a!"})
	assert.Equal(t, http.StatusBadRequest, code)

	// Username collision on save.
	code, _ = s.call(t, http.MethodPut, "/api/profile", "bob-uid", services.ProfileInput{DisplayName: "Bob", Username: "Alice"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.call(t, http.MethodGet, "/api/profiles/by-username/Alice", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice-uid", body["profile"].(map[string]interface{})["uid"])

	code, body = s.call(t, http.MethodGet, "/api/profiles/ghost", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, services.UnknownDisplayName, body["profile"].(map[string]interface{})["display_name"])
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t)
	s.onboard(t, "alice-uid", "alice")
	s.onboard(t, "bob-uid", "bob")

	code, body := s.call(t, http.MethodPost, "/api/conversations", "alice-uid", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusOK, code, body)
	convID := body["conversation_id"].(string)

	// The same pair gets the same thread from either side.
	_, body = s.call(t, http.MethodPost, "/api/conversations", "bob-uid", map[string]string{"user_id": "alice-uid"})
	assert.Equal(t, convID, body["conversation_id"])

	code, _ = s.call(t, http.MethodPost, "/api/conversations", "alice-uid", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.call(t, http.MethodPost, "/api/conversations/"+convID+"/messages", "alice-uid", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.call(t, http.MethodPost, "/api/conversations/"+convID+"/messages", "alice-uid", map[string]string{"text": "Is the car free Friday?"})
	require.Equal(t, http.StatusCreated, code, body)

	_, body = s.call(t, http.MethodGet, "/api/messages/unread-count", "bob-uid", nil)
	assert.Equal(t, float64(1), body["count"])

	_, body = s.call(t, http.MethodGet, "/api/conversations", "bob-uid", nil)
	convs := body["conversations"].([]interface{})
	require.Len(t, convs, 1)
	summary := convs[0].(map[string]interface{})
	assert.Equal(t, float64(1), summary["unread_count"])
	assert.Equal(t, "alice", summary["other"].(map[string]interface{})["username"])

	code, body = s.call(t, http.MethodGet, "/api/conversations/"+convID+"/messages", "bob-uid", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)

	code, body = s.call(t, http.MethodPost, "/api/conversations/"+convID+"/read", "bob-uid", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1), body["marked"])

	_, body = s.call(t, http.MethodGet, "/api/messages/unread-count", "bob-uid", nil)
	assert.Equal(t, float64(0), body["count"])

	code, _ = s.call(t, http.MethodPost, "/api/conversations/"+convID+"/typing", "alice-uid", map[string]bool{"typing": true})
	assert.Equal(t, http.StatusOK, code)

	// Outsiders cannot read or write the thread.
	code, _ = s.call(t, http.MethodGet, "/api/conversations/"+convID, "carol-uid", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.call(t, http.MethodPost, "/api/conversations/"+convID+"/messages", "carol-uid", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.call(t, http.MethodGet, "/api/conversations/missing", "alice-uid", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCarsAndBookings(t *testing.T) {
	s := newTestServer(t)
	s.onboard(t, "owner-uid", "owner")
	s.onboard(t, "renter-uid", "renter")
	s.onboard(t, "other-uid", "other")

	code, _ := s.call(t, http.MethodPost, "/api/cars", "nobody-uid", services.ListingInput{Make: "Toyota", Model: "Corolla", Year: 2020, DailyRate: 40})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.call(t, http.MethodPost, "/api/cars", "owner-uid", services.ListingInput{
		Make: "Toyota", Model: "Corolla", Year: 2020, DailyRate: 40, Seats: 5, Location: "Austin",
	})
	require.Equal(t, http.StatusCreated, code, body)
	carID := body["car"].(map[string]interface{})["id"].(string)

	code, body = s.call(t, http.MethodGet, "/api/cars?make=toyota&location=austin", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])

	code, body = s.call(t, http.MethodGet, "/api/cars/"+carID, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "owner", body["owner"].(map[string]interface{})["username"])

	code, _ = s.call(t, http.MethodPut, "/api/cars/"+carID, "renter-uid", services.ListingInput{Make: "Toyota", Model: "Camry", Year: 2020, DailyRate: 40})
	assert.Equal(t, http.StatusForbidden, code)

	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 7)
	req := services.BookingInput{CarID: carID, StartDate: day, EndDate: day.AddDate(0, 0, 3)}

	code, body = s.call(t, http.MethodPost, "/api/bookings", "renter-uid", req)
	require.Equal(t, http.StatusCreated, code, body)
	booking := body["booking"].(map[string]interface{})
	bookingID := booking["id"].(string)
	assert.Equal(t, float64(120), booking["total_price"])
	assert.Equal(t, "pending", booking["status"])

	code, body = s.call(t, http.MethodPost, "/api/bookings", "other-uid", req)
	require.Equal(t, http.StatusCreated, code, body)
	otherID := body["booking"].(map[string]interface{})["id"].(string)

	// Only the owner approves.
	code, _ = s.call(t, http.MethodPut, "/api/bookings/"+bookingID+"/status", "renter-uid", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, code)
	code, body = s.call(t, http.MethodPut, "/api/bookings/"+bookingID+"/status", "owner-uid", map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, code, body)
	code, _ = s.call(t, http.MethodPut, "/api/bookings/"+bookingID+"/status", "renter-uid", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, code)

	// The overlapping request can no longer be approved.
	code, _ = s.call(t, http.MethodPut, "/api/bookings/"+otherID+"/status", "owner-uid", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.call(t, http.MethodPost, "/api/bookings", "other-uid", req)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.call(t, http.MethodPut, "/api/bookings/"+bookingID+"/status", "owner-uid", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.call(t, http.MethodGet, "/api/bookings/"+bookingID+"/history", "renter-uid", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["history"], 1)

	code, _ = s.call(t, http.MethodGet, "/api/bookings/"+bookingID, "other-uid", nil)
	assert.Equal(t, http.StatusForbidden, code)

	_, body = s.call(t, http.MethodGet, "/api/bookings?role=owner", "owner-uid", nil)
	assert.Len(t, body["bookings"], 2)
	_, body = s.call(t, http.MethodGet, "/api/bookings", "renter-uid", nil)
	assert.Len(t, body["bookings"], 1)
	code, _ = s.call(t, http.MethodGet, "/api/bookings?role=admin", "renter-uid", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// A car with an approved booking stays.
	code, _ = s.call(t, http.MethodDelete, "/api/cars/"+carID, "owner-uid", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.call(t, http.MethodPut, "/api/cars/"+carID+"/status", "owner-uid", map[string]string{"status": "maintenance"})
	require.Equal(t, http.StatusOK, code, body)
	_, body = s.call(t, http.MethodGet, "/api/users/owner-uid/cars", "", nil)
	assert.Len(t, body["cars"], 1)
}

func TestUploadWithoutCloudinary(t *testing.T) {
	s := newTestServer(t)
	code, body := s.call(t, http.MethodPost, "/api/upload?folder=cars", "alice-uid", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["success"])
}

func TestConversationSocket(t *testing.T) {
	s := newTestServer(t)
	s.onboard(t, "alice-uid", "alice")
	s.onboard(t, "bob-uid", "bob")
	_, body := s.call(t, http.MethodPost, "/api/conversations", "alice-uid", map[string]string{"user_id": "bob-uid"})
	convID := body["conversation_id"].(string)

	bob := s.dial(t, "/ws/conversations/"+convID, "bob-uid")
	next(t, bob, handlers.EventMessages, nil)

	unread := s.dial(t, "/ws/unread", "bob-uid")
	data := next(t, unread, handlers.EventUnread, nil)
	assert.JSONEq(t, `0`, string(data))

	alice := s.dial(t, "/ws/conversations/"+convID, "alice-uid")
	next(t, alice, handlers.EventMessages, nil)

	require.NoError(t, alice.WriteJSON(handlers.ChatClientMessage{Type: "typing_start"}))
	next(t, bob, handlers.EventTyping, func(d json.RawMessage) bool {
		return string(d) == `["alice-uid"]`
	})

	require.NoError(t, alice.WriteJSON(handlers.ChatClientMessage{Type: "message", Text: "hello bob"}))
	next(t, alice, handlers.EventMessageAck, nil)

	next(t, bob, handlers.EventMessages, func(d json.RawMessage) bool {
		var msgs []map[string]interface{}
		return json.Unmarshal(d, &msgs) == nil && len(msgs) == 1 && msgs[0]["text"] == "hello bob"
	})
	next(t, unread, handlers.EventUnread, func(d json.RawMessage) bool { return string(d) == `1` })

	require.NoError(t, bob.WriteJSON(handlers.ChatClientMessage{Type: "read"}))
	next(t, unread, handlers.EventUnread, func(d json.RawMessage) bool { return string(d) == `0` })

	inbox := s.dial(t, "/ws/conversations", "alice-uid")
	next(t, inbox, handlers.EventConversations, func(d json.RawMessage) bool {
		var convs []services.ConversationSummary
		return json.Unmarshal(d, &convs) == nil && len(convs) == 1 && convs[0].ID == convID
	})
}

func TestConversationSocketForbidden(t *testing.T) {
	s := newTestServer(t)
	s.onboard(t, "alice-uid", "alice")
	_, body := s.call(t, http.MethodPost, "/api/conversations", "alice-uid", map[string]string{"user_id": "bob-uid"})
	convID := body["conversation_id"].(string)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/conversations/" + convID + "?token=" + s.token(t, "mallory-uid")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
