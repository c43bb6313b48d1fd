package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

// LocalStore writes blobs under a directory. It backs development setups
// without Cloudinary credentials; files are served under BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("op=storage.NewLocalStore: %w", err)
	}
	return &LocalStore{Dir: dir, BaseURL: baseURL}, nil
}

// Put stores data as <folder>/<uuid><ext>.
func (s *LocalStore) Put(_ domain.Context, folder, _ string, data []byte, mime string) (domain.StoredObject, error) {
	ext := ""
	if m := mimetype.Lookup(mime); m != nil {
		ext = m.Extension()
	}
	name := uuid.NewString() + ext
	publicID := path.Join(filepath.ToSlash(folder), name)

	full := filepath.Join(s.Dir, filepath.FromSlash(publicID))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.StoredObject{}, fmt.Errorf("op=storage.local.Put: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return domain.StoredObject{}, fmt.Errorf("op=storage.local.Put: %w", err)
	}
	return domain.StoredObject{PublicID: publicID, URL: s.BaseURL + "/" + publicID}, nil
}
