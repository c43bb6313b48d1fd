package usecase

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sharow/sharow/internal/domain"
	obsctx "github.com/sharow/sharow/internal/observability"
	"github.com/sharow/sharow/pkg/textx"
)

// A base of 20 plus "_" and four digits fits the 25 character username limit.
const (
	usernameBaseLen  = 20
	usernameAttempts = 5
)

// OAuthService signs users in through third-party providers.
type OAuthService struct {
	Users     domain.UserRepository
	Tokens    TokenIssuer
	providers map[string]domain.OAuthProvider
}

// NewOAuthService registers the configured providers by name.
func NewOAuthService(users domain.UserRepository, tokens TokenIssuer, providers ...domain.OAuthProvider) *OAuthService {
	m := make(map[string]domain.OAuthProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			m[p.Name()] = p
		}
	}
	return &OAuthService{Users: users, Tokens: tokens, providers: m}
}

// OAuthStart is what the handler needs to redirect to the consent page.
type OAuthStart struct {
	URL      string
	State    string
	Verifier string
}

// Begin prepares a consent redirect with a fresh state and PKCE verifier.
func (s *OAuthService) Begin(provider string) (OAuthStart, error) {
	p, ok := s.providers[provider]
	if !ok {
		return OAuthStart{}, ErrProviderNotFound
	}
	state, err := randomState()
	if err != nil {
		return OAuthStart{}, fmt.Errorf("op=usecase.OAuthBegin: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	return OAuthStart{URL: p.AuthCodeURL(state, verifier), State: state, Verifier: verifier}, nil
}

// OAuthCallback carries the query parameters and the cookies set by Begin.
type OAuthCallback struct {
	Provider      string
	State         string
	Code          string
	ExpectedState string
	Verifier      string
}

// Callback completes the flow and returns the signed-in user.
func (s *OAuthService) Callback(ctx domain.Context, in OAuthCallback) (AuthResult, error) {
	p, ok := s.providers[in.Provider]
	if !ok {
		return AuthResult{}, ErrProviderNotFound
	}
	if in.State == "" || in.ExpectedState == "" ||
		subtle.ConstantTimeCompare([]byte(in.State), []byte(in.ExpectedState)) != 1 {
		return AuthResult{}, ErrOAuthState
	}
	if in.Code == "" {
		return AuthResult{}, ErrOAuthFailed
	}

	prof, err := p.Exchange(ctx, in.Code, in.Verifier)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("oauth exchange failed", slog.String("provider", in.Provider), slog.Any("error", err))
		return AuthResult{}, ErrOAuthFailed
	}
	email := normalizeEmail(prof.Email)
	if email == "" || !prof.EmailVerified {
		return AuthResult{}, ErrEmailNotVerified
	}

	user, err := s.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		user, err = s.createUser(ctx, email, prof)
		if err != nil {
			return AuthResult{}, fmt.Errorf("op=usecase.OAuthCallback: %w", err)
		}
		obsctx.LoggerFromContext(ctx).Info("user created via oauth", slog.String("provider", in.Provider), slog.String("user_id", user.ID.String()))
	case err != nil:
		return AuthResult{}, fmt.Errorf("op=usecase.OAuthCallback: %w", err)
	}

	pair, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.OAuthCallback: %w", err)
	}
	return AuthResult{User: domain.AuthUser{ID: user.ID, Email: user.Email, Username: user.Username}, Tokens: pair}, nil
}

func (s *OAuthService) createUser(ctx domain.Context, email string, prof domain.OAuthProfile) (domain.User, error) {
	base := usernameBase(email, prof)
	for i := 0; i < usernameAttempts; i++ {
		name := base
		if i > 0 {
			suffix, err := randomDigits(4)
			if err != nil {
				return domain.User{}, err
			}
			name = base + "_" + suffix
		}
		taken, err := s.Users.ExistsByUsername(ctx, name)
		if err != nil {
			return domain.User{}, err
		}
		if taken {
			continue
		}
		user, err := s.Users.Create(ctx, domain.User{Email: email, Username: name})
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race on the username or the email; the email case resolves on re-read.
			if existing, gerr := s.Users.GetByEmail(ctx, email); gerr == nil {
				return existing, nil
			}
			continue
		}
		return user, err
	}
	return domain.User{}, fmt.Errorf("%w: no free username for %q", domain.ErrConflict, base)
}

// usernameBase picks the provider login, then the display name, then the email local part.
func usernameBase(email string, prof domain.OAuthProfile) string {
	local, _, _ := strings.Cut(email, "@")
	for _, candidate := range []string{prof.Login, prof.Name, local} {
		if slug := textx.Slug(candidate, usernameBaseLen); len(slug) >= 3 {
			return slug
		}
	}
	return "user"
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
