package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/usecase"
	"github.com/sharow/sharow/pkg/textx"
)

const maxQuestionLen = 1000

type chatRequest struct {
	ConversationID string `json:"conversationId" validate:"required,uuid"`
	Message        string `json:"message" validate:"required,min=1,max=1000"`
}

// UploadHandler stores a single image.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := readImageForm(w, r, imageField, s.Cfg.MaxUploadBytes(), usecase.ErrFileMissing)
		if err != nil {
			writeError(w, r, err)
			return
		}
		obj, err := s.Uploads.Upload(r.Context(), img.Filename, img.Data, img.MIME)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "Successfully uploaded the file", map[string]any{
			"publicId": obj.PublicID,
			"url":      obj.URL,
		})
	}
}

// AnalyzeHandler runs the agent on an uploaded bill.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFrom(r.Context())
		img, err := readImageForm(w, r, imageField, s.Cfg.MaxUploadBytes(), usecase.ErrBillFileMissing)
		if err != nil {
			writeError(w, r, err)
			return
		}
		apps, err := parseAppliances(r.FormValue("appliances"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		question := textx.SanitizeText(r.FormValue("question"))
		if len([]rune(question)) > maxQuestionLen {
			writeError(w, r, errValidation.WithDetails([]ValidationError{{
				Field: "question", Code: "MAX", Message: "question must be at most 1000 characters",
			}}))
			return
		}

		res, err := s.Bills.Analyze(r.Context(), usecase.AnalyzeBillInput{
			UserID:     user.ID,
			Filename:   img.Filename,
			Image:      img.Data,
			MIME:       img.MIME,
			Question:   question,
			Appliances: apps,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "Bill analyzed successfully", map[string]any{
			"bill":           res.Bill,
			"conversationId": res.ConversationID,
		})
	}
}

// ChatHandler answers a follow-up question on a bill conversation.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFrom(r.Context())
		var req chatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.Message = textx.SanitizeText(req.Message)
		if err := validateRequest(req, errValidation); err != nil {
			writeError(w, r, err)
			return
		}
		convID := uuid.MustParse(req.ConversationID)
		reply, err := s.Bills.Chat(r.Context(), user.ID, convID, req.Message)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Message processed successfully", map[string]any{
			"response":       reply.Response,
			"conversationId": reply.ConversationID,
		})
	}
}

// ListBillsHandler returns the caller's bills.
func (s *Server) ListBillsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFrom(r.Context())
		bills, err := s.Bills.List(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Bills retrieved successfully", map[string]any{"bills": bills})
	}
}

// GetBillHandler returns one bill with its conversations.
func (s *Server) GetBillHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFrom(r.Context())
		detail, err := s.Bills.Get(r.Context(), user.ID, chi.URLParam(r, "billId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Bill retrieved successfully", map[string]any{
			"bill":          detail.Bill,
			"conversations": detail.Conversations,
		})
	}
}
