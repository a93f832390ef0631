package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

// ListBookings returns the caller's bookings. ?role=owner lists requests for
// the caller's cars; the default is the caller's own rentals.
func (a *API) ListBookings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	role := services.BookingRole(r.URL.Query().Get("role"))
	bookings, err := a.Bookings.ListBookings(ctx, auth.UID(ctx), role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"bookings": bookings})
}

func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in services.BookingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	b, err := a.Bookings.CreateBooking(ctx, auth.UID(ctx), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"booking": b})
}

func (a *API) GetBooking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	b, err := a.Bookings.GetBooking(ctx, chi.URLParam(r, "id"), auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"booking": b})
}

// UpdateBookingStatus moves a booking along its lifecycle.
func (a *API) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.BookingStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	b, err := a.Bookings.UpdateBookingStatus(ctx, chi.URLParam(r, "id"), req.Status, auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"booking": b})
}

func (a *API) BookingHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	events, err := a.Bookings.BookingHistory(ctx, chi.URLParam(r, "id"), auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"history": events})
}
