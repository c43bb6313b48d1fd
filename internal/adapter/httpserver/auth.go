package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sharow/sharow/internal/domain"
	obsctx "github.com/sharow/sharow/internal/observability"
)

// Cookie names shared with the frontend.
const (
	cookieOTPSession    = "otpUUID"
	cookieRefreshToken  = "refreshToken"
	cookieOAuthState    = "oauthState"
	cookieOAuthVerifier = "oauthVerifier"
)

const oauthCookieTTL = 5 * time.Minute

// cookies builds the service cookies. Secure is off only in dev so local HTTP works.
type cookies struct {
	secure     bool
	refreshTTL time.Duration
}

func (c cookies) set(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (c cookies) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (c cookies) setRefresh(w http.ResponseWriter, token string) {
	c.set(w, cookieRefreshToken, token, "/", c.refreshTTL)
}

func (c cookies) clearRefresh(w http.ResponseWriter) { c.clear(w, cookieRefreshToken, "/") }

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

type userKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u domain.AuthUser) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user set by RequireAuth.
func UserFrom(ctx context.Context) (domain.AuthUser, bool) {
	u, ok := ctx.Value(userKey{}).(domain.AuthUser)
	return u, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth resolves the bearer token to a user or answers 401.
// Tokens that are forged or point at a deleted user also drop the refresh cookie.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.Auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if apiErr, ok := domain.AsAPIError(err); ok && (apiErr.Code == "INVALID_TOKEN" || apiErr.Code == "USER_NOT_FOUND") {
				s.cookies.clearRefresh(w)
			}
			writeError(w, r, err)
			return
		}
		ctx := WithUser(r.Context(), user)
		ctx = obsctx.WithLogAttrs(ctx, slog.String("user_id", user.ID.String()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
