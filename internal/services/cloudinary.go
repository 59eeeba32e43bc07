package services

import (
	"context"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CloudinaryStorage uploads pictures to Cloudinary and returns the secure
// URL, whose path ends in the generated public id.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStorage(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Cloudinary")
	}

	return &CloudinaryStorage{
		cld:    cld,
		folder: folder,
	}, nil
}

func (s *CloudinaryStorage) Save(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	file, _, _, err := openImage(fileHeader)
	if err != nil {
		return "", err
	}
	defer file.Close()

	result, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     uuid.New().String(),
		ResourceType: "image",
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to upload to Cloudinary")
	}
	if result.Error.Message != "" {
		return "", errors.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}

	return result.SecureURL, nil
}
