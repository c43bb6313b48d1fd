package usecase

import (
	"fmt"

	"github.com/sharow/sharow/internal/domain"
)

// Upload folders in the blob store.
const (
	UploadFolder = "sharow"
	BillFolder   = "sharow/bills"
)

// UploadService stores user uploads.
type UploadService struct {
	Store domain.BlobStore
}

// NewUploadService constructs an UploadService.
func NewUploadService(store domain.BlobStore) UploadService { return UploadService{Store: store} }

// Upload stores an already validated image.
func (s UploadService) Upload(ctx domain.Context, filename string, data []byte, mime string) (domain.StoredObject, error) {
	if len(data) == 0 {
		return domain.StoredObject{}, ErrFileMissing
	}
	obj, err := s.Store.Put(ctx, UploadFolder, filename, data, mime)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("op=usecase.Upload: %w", err)
	}
	return obj, nil
}
