package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

// requestTimeout bounds every HTTP handler's work.
const requestTimeout = 10 * time.Second

// API carries the services the HTTP and WebSocket handlers call into.
type API struct {
	Profiles      *services.ProfileService
	Conversations *services.ConversationDirectory
	Messages      *services.MessageChannel
	Watcher       *services.Watcher
	Unread        *services.UnreadAggregator
	Typing        *services.TypingTracker
	Listings      *services.ListingService
	Bookings      *services.BookingService
	// Uploader is nil when Cloudinary is not configured.
	Uploader services.PhotoUploader
	Log      zerolog.Logger
}

type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if _, ok := body["success"]; !ok {
		body["success"] = status < http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"success": false, "message": message})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrOnboardingRequired):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrBookingConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		a.Log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeFailure(w, status, "Internal server error")
		return
	}
	writeFailure(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty,
// including chunked requests with no length.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeFailure(w, http.StatusBadRequest, "Invalid request body")
	return false
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryFloat(r *http.Request, key string) float64 {
	f, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return 0
	}
	return f
}
