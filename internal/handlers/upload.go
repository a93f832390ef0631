package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
	"github.com/AnshRaj112/driveshare-backend/internal/services"
)

const (
	maxUploadBytes = 10 << 20 // 10MB
	uploadTimeout  = 30 * time.Second
)

type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// UploadPhoto stores a profile or car photo and returns its URL.
// Query param folder is profiles (default) or cars.
func (a *API) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if a.Uploader == nil {
		writeFailure(w, http.StatusServiceUnavailable, "File uploads are not available")
		return
	}

	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = services.FolderProfiles
	}
	if !services.ValidPhotoFolder(folder) {
		writeFailure(w, http.StatusBadRequest, "folder must be profiles or cars")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFailure(w, http.StatusBadRequest, "Failed to parse form: "+err.Error())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	url, err := a.Uploader.UploadPhoto(ctx, file, folder, auth.UID(ctx))
	if err != nil {
		a.Log.Error().Err(err).Str("folder", folder).Msg("photo upload failed")
		writeFailure(w, http.StatusBadGateway, "Failed to upload file")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{
		Success: true,
		Message: "File uploaded successfully",
		URL:     url,
	})
}
