package usecase_test

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharow/sharow/internal/auth"
	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/usecase"
)

type fakeProvider struct {
	name    string
	profile domain.OAuthProfile
	err     error
	gotCode string
	gotVer  string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://provider.test/auth?state=" + url.QueryEscape(state) + "&v=" + url.QueryEscape(verifier)
}

func (p *fakeProvider) Exchange(_ domain.Context, code, verifier string) (domain.OAuthProfile, error) {
	p.gotCode, p.gotVer = code, verifier
	return p.profile, p.err
}

func newOAuthService(users *memUsers, p *fakeProvider) *usecase.OAuthService {
	tokens := auth.NewTokenManager("a", "r", time.Hour, time.Hour)
	return usecase.NewOAuthService(users, tokens, p)
}

func TestOAuth_Begin(t *testing.T) {
	t.Parallel()
	svc := newOAuthService(&memUsers{}, &fakeProvider{name: "google"})

	start, err := svc.Begin("google")
	require.NoError(t, err)
	assert.NotEmpty(t, start.State)
	assert.GreaterOrEqual(t, len(start.Verifier), 43)
	assert.Contains(t, start.URL, url.QueryEscape(start.State))

	other, err := svc.Begin("google")
	require.NoError(t, err)
	assert.NotEqual(t, start.State, other.State)

	_, err = svc.Begin("facebook")
	requireCode(t, err, "PROVIDER_NOT_FOUND")
}

func TestOAuth_CallbackCreatesUser(t *testing.T) {
	t.Parallel()
	users := &memUsers{}
	p := &fakeProvider{name: "github", profile: domain.OAuthProfile{Provider: "github", Email: "Octo@Example.com", EmailVerified: true, Login: "Octo Cat"}}
	svc := newOAuthService(users, p)

	res, err := svc.Callback(context.Background(), usecase.OAuthCallback{
		Provider: "github", State: "s1", ExpectedState: "s1", Code: "c1", Verifier: "v1",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", p.gotCode)
	assert.Equal(t, "v1", p.gotVer)
	assert.Equal(t, "octo@example.com", res.User.Email)
	assert.Equal(t, "octo_cat", res.User.Username)
	assert.NotEmpty(t, res.Tokens.RefreshToken)

	u, err := users.GetByEmail(context.Background(), "octo@example.com")
	require.NoError(t, err)
	assert.Nil(t, u.PasswordHash)

	again, err := svc.Callback(context.Background(), usecase.OAuthCallback{
		Provider: "github", State: "s2", ExpectedState: "s2", Code: "c2",
	})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
	assert.Len(t, users.users, 1)
}

func TestOAuth_CallbackSuffixesTakenUsername(t *testing.T) {
	t.Parallel()
	users := &memUsers{}
	_, err := users.Create(context.Background(), domain.User{Email: "other@example.com", Username: "jane"})
	require.NoError(t, err)
	p := &fakeProvider{name: "google", profile: domain.OAuthProfile{Email: "jane@example.com", EmailVerified: true, Login: "Jane"}}

	res, err := newOAuthService(users, p).Callback(context.Background(), usecase.OAuthCallback{
		Provider: "google", State: "s", ExpectedState: "s", Code: "c",
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^jane_\d{4}$`), res.User.Username)
}

func TestOAuth_CallbackFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name string
		prov *fakeProvider
		in   usecase.OAuthCallback
		code string
	}{
		{"unknown provider", &fakeProvider{name: "google"}, usecase.OAuthCallback{Provider: "gitlab", State: "s", ExpectedState: "s", Code: "c"}, "PROVIDER_NOT_FOUND"},
		{"state mismatch", &fakeProvider{name: "google"}, usecase.OAuthCallback{Provider: "google", State: "s", ExpectedState: "t", Code: "c"}, "INVALID_OAUTH_STATE"},
		{"missing state cookie", &fakeProvider{name: "google"}, usecase.OAuthCallback{Provider: "google", State: "s", Code: "c"}, "INVALID_OAUTH_STATE"},
		{"exchange error", &fakeProvider{name: "google", err: errors.New("boom")}, usecase.OAuthCallback{Provider: "google", State: "s", ExpectedState: "s", Code: "c"}, "OAUTH_FAILED"},
		{"unverified email", &fakeProvider{name: "google", profile: domain.OAuthProfile{Email: "x@example.com"}}, usecase.OAuthCallback{Provider: "google", State: "s", ExpectedState: "s", Code: "c"}, "EMAIL_NOT_VERIFIED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := newOAuthService(&memUsers{}, tc.prov).Callback(ctx, tc.in)
			requireCode(t, err, tc.code)
		})
	}
}
