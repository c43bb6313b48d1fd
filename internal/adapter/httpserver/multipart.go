package httpserver

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/usecase"
)

// Form field carrying the bill image on both upload routes.
const imageField = "bill_image"

// multipartSlack leaves room for the other form fields next to the file.
const multipartSlack = 1 << 20

type uploadedImage struct {
	Filename string
	Data     []byte
	MIME     string
}

// readImageForm parses the multipart form and returns the sniffed image under field.
// missing is returned when the field is absent or empty.
func readImageForm(w http.ResponseWriter, r *http.Request, field string, maxBytes int64, missing *domain.APIError) (uploadedImage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartSlack)
	if err := r.ParseMultipartForm(maxBytes + multipartSlack); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return uploadedImage{}, usecase.ErrFileTooLarge.WithDetails(map[string]any{"maxBytes": maxBytes})
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return uploadedImage{}, missing
		}
		return uploadedImage{}, missing.WithDetails(err.Error())
	}

	f, hdr, err := r.FormFile(field)
	if err != nil {
		return uploadedImage{}, missing
	}
	defer func() { _ = f.Close() }()
	if hdr.Size > maxBytes {
		return uploadedImage{}, usecase.ErrFileTooLarge.WithDetails(map[string]any{"maxBytes": maxBytes})
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return uploadedImage{}, missing.WithDetails(err.Error())
	}
	if len(data) == 0 {
		return uploadedImage{}, missing
	}
	if int64(len(data)) > maxBytes {
		return uploadedImage{}, usecase.ErrFileTooLarge.WithDetails(map[string]any{"maxBytes": maxBytes})
	}

	// The declared Content-Type is ignored; only the bytes decide.
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return uploadedImage{}, usecase.ErrUnsupportedMedia.WithDetails(map[string]any{"mime": mt.String()})
	}
	mime, _, _ := strings.Cut(mt.String(), ";")
	return uploadedImage{Filename: hdr.Filename, Data: data, MIME: mime}, nil
}
