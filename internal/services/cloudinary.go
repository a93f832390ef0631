package services

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Photo folders accepted by the upload endpoint.
const (
	FolderProfiles = "profiles"
	FolderCars     = "cars"

	cloudinaryRootFolder = "driveshare"
)

// PhotoUploader stores an image and returns its public URL.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, file io.Reader, folder, ownerID string) (string, error)
}

// ValidPhotoFolder reports whether folder is one of the upload folders.
func ValidPhotoFolder(folder string) bool {
	return folder == FolderProfiles || folder == FolderCars
}

type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryService{
		cld: cld,
	}, nil
}

// UploadPhoto stores the image under driveshare/<folder>/<ownerID>.
func (s *CloudinaryService) UploadPhoto(ctx context.Context, file io.Reader, folder, ownerID string) (string, error) {
	if !ValidPhotoFolder(folder) {
		return "", fmt.Errorf("%w: unknown folder %q", ErrInvalidInput, folder)
	}

	uploadResult, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       fmt.Sprintf("%s/%s/%s", cloudinaryRootFolder, folder, ownerID),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if uploadResult.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", uploadResult.Error.Message)
	}

	return uploadResult.SecureURL, nil
}
