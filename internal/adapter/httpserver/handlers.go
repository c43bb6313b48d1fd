package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/config"
	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/usecase"
)

// AuthAPI is the account surface the handlers call.
type AuthAPI interface {
	Signup(ctx context.Context, in usecase.SignupInput) (uuid.UUID, error)
	VerifyOTP(ctx context.Context, sessionID, otp string) (usecase.AuthResult, error)
	ResendOTP(ctx context.Context, sessionID string) error
	Login(ctx context.Context, email, password string) (usecase.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (usecase.AuthResult, error)
	Authenticate(ctx context.Context, accessToken string) (domain.AuthUser, error)
}

// OAuthAPI drives provider sign-in.
type OAuthAPI interface {
	Begin(provider string) (usecase.OAuthStart, error)
	Callback(ctx context.Context, in usecase.OAuthCallback) (usecase.AuthResult, error)
}

// UploadAPI stores plain uploads.
type UploadAPI interface {
	Upload(ctx context.Context, filename string, data []byte, mime string) (domain.StoredObject, error)
}

// BillAPI analyses bills and answers questions about them.
type BillAPI interface {
	Analyze(ctx context.Context, in usecase.AnalyzeBillInput) (usecase.AnalyzeBillResult, error)
	Chat(ctx context.Context, userID, conversationID uuid.UUID, message string) (usecase.ChatReply, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error)
	Get(ctx context.Context, userID uuid.UUID, billID string) (usecase.BillDetail, error)
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Auth       AuthAPI
	OAuth      OAuthAPI
	Uploads    UploadAPI
	Bills      BillAPI
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error

	cookies cookies
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = newValidator() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, authSvc AuthAPI, oauthSvc OAuthAPI, uploads UploadAPI, bills BillAPI, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		Auth:       authSvc,
		OAuth:      oauthSvc,
		Uploads:    uploads,
		Bills:      bills,
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
		cookies:    cookies{secure: !cfg.IsDev() && !cfg.IsTest(), refreshTTL: cfg.RefreshTokenTTL},
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	}
}

// ReadyzHandler returns a readiness handler that pings Postgres and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		targets := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}

		checks := make([]check, 0, len(targets))
		ok := true
		for _, p := range targets {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"success": ok, "checks": checks})
	}
}
