package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sharow/sharow/internal/usecase"
)

const oauthCookiePath = "/v1/oauth"

// OAuthStartHandler redirects to the provider consent page.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := s.OAuth.Begin(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.set(w, cookieOAuthState, start.State, oauthCookiePath, oauthCookieTTL)
		s.cookies.set(w, cookieOAuthVerifier, start.Verifier, oauthCookiePath, oauthCookieTTL)
		http.Redirect(w, r, start.URL, http.StatusFound)
	}
}

// OAuthCallbackHandler finishes sign-in and sends the browser back to the frontend.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res, err := s.OAuth.Callback(r.Context(), usecase.OAuthCallback{
			Provider:      chi.URLParam(r, "provider"),
			State:         q.Get("state"),
			Code:          q.Get("code"),
			ExpectedState: cookieValue(r, cookieOAuthState),
			Verifier:      cookieValue(r, cookieOAuthVerifier),
		})
		s.cookies.clear(w, cookieOAuthState, oauthCookiePath)
		s.cookies.clear(w, cookieOAuthVerifier, oauthCookiePath)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.setRefresh(w, res.Tokens.RefreshToken)
		http.Redirect(w, r, s.Cfg.FrontendURL, http.StatusFound)
	}
}
