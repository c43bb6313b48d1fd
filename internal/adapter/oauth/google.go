package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sharow/sharow/internal/domain"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// NewGoogle builds the Google provider.
func NewGoogle(clientID, clientSecret, redirectURL string) *Provider {
	return newGoogle(clientID, clientSecret, redirectURL, google.Endpoint, googleUserInfoURL)
}

func newGoogle(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint, userInfoURL string) *Provider {
	return &Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		profile: func(ctx context.Context, client *http.Client) (domain.OAuthProfile, error) {
			var info struct {
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
				Name          string `json:"name"`
				GivenName     string `json:"given_name"`
			}
			if err := getJSON(ctx, client, userInfoURL, &info); err != nil {
				return domain.OAuthProfile{}, err
			}
			return domain.OAuthProfile{
				Email:         info.Email,
				EmailVerified: info.EmailVerified,
				Name:          info.Name,
				Login:         info.GivenName,
			}, nil
		},
	}
}
