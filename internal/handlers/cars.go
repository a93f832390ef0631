package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

// SearchCars lists active listings.
// Query params: make, model, location, min_rate, max_rate, seats,
// transmission, fuel_type, sort (newest|price_asc|price_desc), limit, offset.
func (a *API) SearchCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.ListingFilter{
		Make:         q.Get("make"),
		Model:        q.Get("model"),
		Location:     q.Get("location"),
		MinRate:      queryFloat(r, "min_rate"),
		MaxRate:      queryFloat(r, "max_rate"),
		MinSeats:     queryInt(r, "seats"),
		Transmission: q.Get("transmission"),
		FuelType:     q.Get("fuel_type"),
		Sort:         q.Get("sort"),
		Limit:        queryInt(r, "limit"),
		Offset:       queryInt(r, "offset"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cars, total, err := a.Listings.Search(ctx, f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"cars": cars, "total": total})
}

func (a *API) CreateCar(w http.ResponseWriter, r *http.Request) {
	var in services.ListingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	car, err := a.Listings.Create(ctx, auth.UID(ctx), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"car": car})
}

// GetCar returns a listing with its owner's public profile.
func (a *API) GetCar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	car, err := a.Listings.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	owner, err := a.Profiles.Lookup(ctx, car.OwnerID)
	if err != nil {
		a.Log.Warn().Err(err).Str("owner_id", car.OwnerID).Msg("owner lookup failed")
	}
	writeJSON(w, http.StatusOK, envelope{"car": car, "owner": owner})
}

func (a *API) UpdateCar(w http.ResponseWriter, r *http.Request) {
	var in services.ListingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	car, err := a.Listings.Update(ctx, chi.URLParam(r, "id"), auth.UID(ctx), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"car": car})
}

func (a *API) SetCarStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.CarStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	car, err := a.Listings.SetStatus(ctx, chi.URLParam(r, "id"), auth.UID(ctx), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"car": car})
}

func (a *API) DeleteCar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := a.Listings.Delete(ctx, chi.URLParam(r, "id"), auth.UID(ctx)); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Car deleted"})
}

// ListUserCars returns every listing a user owns, in any status.
func (a *API) ListUserCars(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cars, err := a.Listings.ListByOwner(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"cars": cars})
}

func (a *API) ListCarMakes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	makes, err := a.Listings.ListCarMakes(ctx)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"makes": makes})
}
