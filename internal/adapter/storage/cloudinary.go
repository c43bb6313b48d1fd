// Package storage holds BlobStore implementations for uploaded bill images.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sharow/sharow/internal/domain"
)

// imageUploader is the part of the Cloudinary upload API this store uses.
type imageUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryStore uploads images to a Cloudinary account.
type CloudinaryStore struct {
	up imageUploader
}

// NewCloudinaryStore builds a store from account credentials.
func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("op=storage.NewCloudinaryStore: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{up: &cld.Upload}, nil
}

// Put uploads data into folder and returns its public id and secure URL.
func (s *CloudinaryStore) Put(ctx domain.Context, folder, filename string, data []byte, mime string) (domain.StoredObject, error) {
	ctx, span := otel.Tracer("storage.cloudinary").Start(ctx, "cloudinary.Put")
	defer span.End()
	span.SetAttributes(
		attribute.String("storage.folder", folder),
		attribute.Int("storage.size", len(data)),
		attribute.String("storage.mime", mime),
	)

	res, err := s.up.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:           folder,
		ResourceType:     "image",
		UseFilename:      api.Bool(filename != ""),
		UniqueFilename:   api.Bool(true),
		FilenameOverride: filename,
	})
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("op=storage.cloudinary.Put: %w", err)
	}
	if res == nil {
		return domain.StoredObject{}, fmt.Errorf("op=storage.cloudinary.Put: empty response")
	}
	if res.Error.Message != "" {
		return domain.StoredObject{}, fmt.Errorf("op=storage.cloudinary.Put: %s", res.Error.Message)
	}
	return domain.StoredObject{PublicID: res.PublicID, URL: res.SecureURL}, nil
}
