package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

// GetMyProfile returns the caller's profile and, to the caller only, their
// phone number. A caller who has not saved one yet gets a null profile so the
// client can start onboarding.
func (a *API) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := a.Profiles.GetProfile(ctx, auth.UID(ctx))
	if errors.Is(err, services.ErrNotFound) {
		writeJSON(w, http.StatusOK, envelope{"profile": nil, "completion": 0})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"profile":    p,
		"phone":      p.Phone,
		"completion": services.CompletionScore(p),
	})
}

// SaveMyProfile creates or updates the caller's profile.
func (a *API) SaveMyProfile(w http.ResponseWriter, r *http.Request) {
	var in services.ProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := a.Profiles.SaveProfile(ctx, auth.UID(ctx), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"profile": p, "completion": services.CompletionScore(p)})
}

func (a *API) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ok, err := a.Profiles.CheckUsernameAvailable(ctx, req.Username, auth.UID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"available": ok})
}

// GetPublicProfile returns another user's display identity.
func (a *API) GetPublicProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := a.Profiles.Lookup(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"profile": p})
}

func (a *API) GetProfileByUsername(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := a.Profiles.GetByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"profile": p.Public()})
}
