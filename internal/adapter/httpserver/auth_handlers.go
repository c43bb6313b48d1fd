package httpserver

import (
	"net/http"

	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/usecase"
)

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Otp string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// SignupHandler starts email signup and sets the otp session cookie.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		id, err := s.Auth.Signup(r.Context(), usecase.SignupInput(req))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.set(w, cookieOTPSession, id.String(), "/", s.Cfg.OTPTTL)
		writeSuccess(w, http.StatusOK, "Registeration process initiated, otp sent via email", nil)
	}
}

// VerifySignupHandler checks the emailed code and creates the account.
func (s *Server) VerifySignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Auth.VerifyOTP(r.Context(), cookieValue(r, cookieOTPSession), req.Otp)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.clear(w, cookieOTPSession, "/")
		s.cookies.setRefresh(w, res.Tokens.RefreshToken)
		writeSuccess(w, http.StatusCreated, "Signup Successful", authBody(res))
	}
}

// ResendOTPHandler sends a fresh code for the pending signup.
func (s *Server) ResendOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Auth.ResendOTP(r.Context(), cookieValue(r, cookieOTPSession)); err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.set(w, cookieOTPSession, cookieValue(r, cookieOTPSession), "/", s.Cfg.OTPTTL)
		writeSuccess(w, http.StatusOK, "Otp resent", nil)
	}
}

// LoginHandler signs in with email and password.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			first := validationErrors(err)[0]
			writeError(w, r, domain.NewAPIError(domain.ErrInvalidArgument, "BAD_REQUEST", first.Message))
			return
		}
		res, err := s.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.cookies.setRefresh(w, res.Tokens.RefreshToken)
		writeSuccess(w, http.StatusOK, "Login Successful", authBody(res))
	}
}

// RefreshHandler rotates the refresh cookie and returns a new access token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Auth.Refresh(r.Context(), cookieValue(r, cookieRefreshToken))
		if err != nil {
			if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Code != "TOKEN_NOT_FOUND" {
				s.cookies.clearRefresh(w)
			}
			writeError(w, r, err)
			return
		}
		s.cookies.setRefresh(w, res.Tokens.RefreshToken)
		writeSuccess(w, http.StatusOK, "Successful request", authBody(res))
	}
}

// LogoutHandler drops the refresh cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.cookies.clearRefresh(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func authBody(res usecase.AuthResult) map[string]any {
	return map[string]any{"user": res.User, "accessToken": res.Tokens.AccessToken}
}
