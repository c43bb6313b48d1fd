package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploaderStub struct {
	params uploader.UploadParams
	res    *uploader.UploadResult
	err    error
}

func (u *uploaderStub) Upload(_ context.Context, _ interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	u.params = params
	return u.res, u.err
}

func TestCloudinaryStore_Put(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stub    *uploaderStub
		wantErr string
	}{
		{
			name: "uploads into folder",
			stub: &uploaderStub{res: &uploader.UploadResult{PublicID: "sharow/bills/abc", SecureURL: "https://res.cloudinary.com/x/abc.png"}},
		},
		{
			name:    "transport error",
			stub:    &uploaderStub{err: assert.AnError},
			wantErr: "op=storage.cloudinary.Put",
		},
		{
			name:    "api error in body",
			stub:    &uploaderStub{res: &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}},
			wantErr: "Invalid image file",
		},
		{
			name:    "nil response",
			stub:    &uploaderStub{},
			wantErr: "empty response",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &CloudinaryStore{up: tt.stub}
			obj, err := s.Put(context.Background(), "sharow/bills", "bill.png", []byte("img"), "image/png")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sharow/bills/abc", obj.PublicID)
			assert.Equal(t, "https://res.cloudinary.com/x/abc.png", obj.URL)
			assert.Equal(t, "sharow/bills", tt.stub.params.Folder)
			assert.Equal(t, "bill.png", tt.stub.params.FilenameOverride)
		})
	}
}

func TestLocalStore_Put(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads")
	require.NoError(t, err)

	obj, err := s.Put(context.Background(), "sharow/bills", "bill.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.PublicID, "sharow/bills/"))
	assert.True(t, strings.HasSuffix(obj.PublicID, ".png"))
	assert.Equal(t, "/uploads/"+obj.PublicID, obj.URL)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(obj.PublicID)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}
