// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/auth"
	"github.com/sharow/sharow/internal/config"
	"github.com/sharow/sharow/internal/domain"
	obsctx "github.com/sharow/sharow/internal/observability"
)

// SecretHasher hashes passwords and OTP codes.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) bool
}

// TokenIssuer issues and parses JWTs.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string) (auth.TokenPair, error)
	ParseAccess(token string) (*auth.Claims, error)
	ParseRefresh(token string) (*auth.Claims, error)
}

// AuthResult is what a successful signup, login or refresh hands to the handler.
type AuthResult struct {
	User   domain.AuthUser
	Tokens auth.TokenPair
}

// AuthService implements email signup with OTP verification, password login and token refresh.
type AuthService struct {
	Users    domain.UserRepository
	Sessions domain.OtpSessionRepository
	Mailer   domain.Mailer
	// Limiter caps OTP emails per address; nil disables the cap.
	Limiter domain.RateLimiter
	Hasher  SecretHasher
	Tokens  TokenIssuer
	Policy  config.OTPPolicy

	now         func() time.Time
	generateOTP func() (string, error)
	mail        sync.WaitGroup
}

// otpMailTimeout bounds a background OTP send, retries included.
const otpMailTimeout = time.Minute

// NewAuthService constructs an AuthService with its dependencies.
func NewAuthService(users domain.UserRepository, sessions domain.OtpSessionRepository, mailer domain.Mailer,
	limiter domain.RateLimiter, hasher SecretHasher, tokens TokenIssuer, policy config.OTPPolicy) *AuthService {
	return &AuthService{
		Users:       users,
		Sessions:    sessions,
		Mailer:      mailer,
		Limiter:     limiter,
		Hasher:      hasher,
		Tokens:      tokens,
		Policy:      policy,
		now:         time.Now,
		generateOTP: auth.GenerateOTP,
	}
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	upperPattern    = regexp.MustCompile(`[A-Z]`)
	lowerPattern    = regexp.MustCompile(`[a-z]`)
	digitPattern    = regexp.MustCompile(`[0-9]`)
	specialPattern  = regexp.MustCompile(`[^A-Za-z0-9\s]`)

	vld = validator.New()
)

// SignupInput is the signup request body.
type SignupInput struct {
	Email    string
	Username string
	Password string
}

// normalize trims and lower-cases the email and trims the username.
func (in SignupInput) normalize() SignupInput {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	return in
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// validate returns the first rule the input breaks, in a fixed order.
func (in SignupInput) validate() error {
	if err := vld.Var(in.Email, "required,email"); err != nil {
		return badRequest("Invalid email")
	}
	switch n := utf8.RuneCountInString(in.Password); {
	case n < 8:
		return badRequest("Password must be at least 8 characters long")
	case n > 20:
		return badRequest("Password cannot exceed 20 characters")
	}
	switch {
	case !upperPattern.MatchString(in.Password):
		return badRequest("Password must contain at least one uppercase letter")
	case !lowerPattern.MatchString(in.Password):
		return badRequest("Password must contain at least one lowercase letter")
	case !digitPattern.MatchString(in.Password):
		return badRequest("Password must contain at least one number")
	case !specialPattern.MatchString(in.Password):
		return badRequest("Password must contain at least one special character")
	}
	switch n := utf8.RuneCountInString(in.Username); {
	case n == 0:
		return badRequest("Username is required")
	case n < 3:
		return badRequest("Username too short")
	case n > 25:
		return badRequest("Username too long")
	}
	if !usernamePattern.MatchString(in.Username) {
		return badRequest("Only letters, numbers, ., -, and _ allowed")
	}
	return nil
}

// Signup validates the request, opens an OTP session and emails the code.
// It returns the session id the client must present on verification.
func (s *AuthService) Signup(ctx domain.Context, in SignupInput) (uuid.UUID, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return uuid.Nil, err
	}

	taken, err := s.Users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("op=usecase.Signup: %w", err)
	}
	if taken {
		return uuid.Nil, ErrEmailTaken
	}
	taken, err = s.Users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return uuid.Nil, fmt.Errorf("op=usecase.Signup: %w", err)
	}
	if taken {
		return uuid.Nil, ErrUsernameTaken
	}

	if err := s.allowOTPRequest(ctx, in.Email); err != nil {
		return uuid.Nil, err
	}

	passwordHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("op=usecase.Signup: %w", err)
	}
	code, otpHash, err := s.newCode()
	if err != nil {
		return uuid.Nil, fmt.Errorf("op=usecase.Signup: %w", err)
	}

	now := s.now().UTC()
	sess := domain.OtpSession{
		ID:           uuid.New(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: passwordHash,
		OtpHash:      otpHash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.Policy.TTL),
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return uuid.Nil, fmt.Errorf("op=usecase.Signup: %w", err)
	}

	s.sendCode(ctx, in.Email, code)
	return sess.ID, nil
}

// VerifyOTP checks the code for a signup session and creates the account.
func (s *AuthService) VerifyOTP(ctx domain.Context, sessionID, otp string) (AuthResult, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" || !isDigits(otp) {
		return AuthResult{}, ErrInvalidOTPFormat
	}
	sess, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return AuthResult{}, err
	}

	// The attempt is claimed before the hash is checked so concurrent guesses cannot share a slot.
	if _, err := s.Sessions.ClaimAttempt(ctx, sess.ID, s.Policy.MaxAttempts); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthResult{}, ErrOTPSessionLimit
		}
		return AuthResult{}, fmt.Errorf("op=usecase.VerifyOTP: %w", err)
	}
	if !s.Hasher.Verify(otp, sess.OtpHash) {
		return AuthResult{}, ErrIncorrectOTP
	}

	emailTaken, err := s.Users.ExistsByEmail(ctx, sess.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.VerifyOTP: %w", err)
	}
	usernameTaken, err := s.Users.ExistsByUsername(ctx, sess.Username)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.VerifyOTP: %w", err)
	}
	if emailTaken || usernameTaken {
		return AuthResult{}, ErrUserExists
	}

	hash := sess.PasswordHash
	user, err := s.Users.Create(ctx, domain.User{Email: sess.Email, Username: sess.Username, PasswordHash: &hash})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return AuthResult{}, ErrUserExists
		}
		return AuthResult{}, fmt.Errorf("op=usecase.VerifyOTP: %w", err)
	}

	res, err := s.issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.VerifyOTP: %w", err)
	}
	if err := s.Sessions.Delete(ctx, sess.ID); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("otp session delete failed", slog.Any("error", err))
	}
	return res, nil
}

// ResendOTP issues a fresh code for an open signup session.
func (s *AuthService) ResendOTP(ctx domain.Context, sessionID string) error {
	sess, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.allowOTPRequest(ctx, sess.Email); err != nil {
		return err
	}
	code, otpHash, err := s.newCode()
	if err != nil {
		return fmt.Errorf("op=usecase.ResendOTP: %w", err)
	}
	if err := s.Sessions.Renew(ctx, sess.ID, otpHash, s.now().UTC().Add(s.Policy.TTL)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrSessionExpired
		}
		return fmt.Errorf("op=usecase.ResendOTP: %w", err)
	}
	s.sendCode(ctx, sess.Email, code)
	return nil
}

// Login checks an email and password.
func (s *AuthService) Login(ctx domain.Context, email, password string) (AuthResult, error) {
	user, err := s.Users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthResult{}, ErrLoginUserNotFound
		}
		return AuthResult{}, fmt.Errorf("op=usecase.Login: %w", err)
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return AuthResult{}, ErrPasswordNotSet
	}
	if !s.Hasher.Verify(password, *user.PasswordHash) {
		return AuthResult{}, ErrInvalidPassword
	}
	res, err := s.issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.Login: %w", err)
	}
	return res, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx domain.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrRefreshMissing
	}
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return AuthResult{}, ErrRefreshExpired
	case err != nil:
		return AuthResult{}, ErrRefreshInvalid
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthResult{}, ErrRefreshUserNotFound
		}
		return AuthResult{}, fmt.Errorf("op=usecase.Refresh: %w", err)
	}
	res, err := s.issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("op=usecase.Refresh: %w", err)
	}
	return res, nil
}

// Authenticate resolves a bearer access token to its user.
func (s *AuthService) Authenticate(ctx domain.Context, accessToken string) (domain.AuthUser, error) {
	if accessToken == "" {
		return domain.AuthUser{}, ErrAccessMissing
	}
	claims, err := s.Tokens.ParseAccess(accessToken)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return domain.AuthUser{}, ErrAccessExpired
	case err != nil:
		return domain.AuthUser{}, ErrAccessInvalid
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AuthUser{}, ErrAccessUserNotFound
		}
		return domain.AuthUser{}, fmt.Errorf("op=usecase.Authenticate: %w", err)
	}
	return domain.AuthUser{ID: user.ID, Email: user.Email, Username: user.Username}, nil
}

func (s *AuthService) userFromClaims(ctx domain.Context, claims *auth.Claims) (domain.User, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: bad subject", domain.ErrNotFound)
	}
	user, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	// An email change invalidates outstanding tokens.
	if !strings.EqualFold(user.Email, claims.Email) {
		return domain.User{}, fmt.Errorf("%w: email mismatch", domain.ErrNotFound)
	}
	return user, nil
}

func (s *AuthService) issue(u domain.User) (AuthResult, error) {
	pair, err := s.Tokens.Issue(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: domain.AuthUser{ID: u.ID, Email: u.Email, Username: u.Username}, Tokens: pair}, nil
}

// liveSession loads an unexpired session; any failure to find one is SESSION_EXPIRED.
func (s *AuthService) liveSession(ctx domain.Context, sessionID string) (domain.OtpSession, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return domain.OtpSession{}, ErrSessionExpired
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OtpSession{}, ErrSessionExpired
		}
		return domain.OtpSession{}, fmt.Errorf("op=usecase.liveSession: %w", err)
	}
	if sess.Expired(s.now()) {
		return domain.OtpSession{}, ErrSessionExpired
	}
	return sess, nil
}

func (s *AuthService) allowOTPRequest(ctx domain.Context, email string) error {
	if s.Limiter == nil {
		return nil
	}
	ok, retryAfter, err := s.Limiter.Allow(ctx, email)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("otp limiter unavailable, allowing request", slog.Any("error", err))
		return nil
	}
	if !ok {
		return ErrEmailSessionLimit.WithDetails(map[string]any{"retryAfterSeconds": int(retryAfter.Seconds())})
	}
	return nil
}

func (s *AuthService) newCode() (code, hash string, err error) {
	code, err = s.generateOTP()
	if err != nil {
		return "", "", err
	}
	hash, err = s.Hasher.Hash(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

// sendCode emails the code in the background so a slow relay does not hold the request.
// Delivery failures are logged; the client can ask for a resend.
func (s *AuthService) sendCode(ctx domain.Context, email, code string) {
	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), otpMailTimeout)
		defer cancel()
		if err := s.Mailer.SendOTP(sendCtx, email, code, s.Policy.TTL); err != nil {
			observability.OTPEmailSent("error")
			obsctx.LoggerFromContext(ctx).Error("otp email failed", slog.Any("error", err))
			return
		}
		observability.OTPEmailSent("sent")
	}()
}

// WaitMail blocks until every OTP email started so far has finished.
func (s *AuthService) WaitMail() { s.mail.Wait() }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
