package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sharow/sharow/internal/domain"
)

const githubAPI = "https://api.github.com"

// NewGitHub builds the GitHub provider.
func NewGitHub(clientID, clientSecret, redirectURL string) *Provider {
	return newGitHub(clientID, clientSecret, redirectURL, github.Endpoint, githubAPI)
}

func newGitHub(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint, apiBase string) *Provider {
	return &Provider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		profile: func(ctx context.Context, client *http.Client) (domain.OAuthProfile, error) {
			var user struct {
				Login string `json:"login"`
				Name  string `json:"name"`
			}
			if err := getJSON(ctx, client, apiBase+"/user", &user); err != nil {
				return domain.OAuthProfile{}, err
			}
			// The public profile email may be hidden; the emails endpoint has the verified primary.
			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
				return domain.OAuthProfile{}, err
			}
			prof := domain.OAuthProfile{Login: user.Login, Name: user.Name}
			for _, e := range emails {
				if e.Primary {
					prof.Email, prof.EmailVerified = e.Email, e.Verified
					break
				}
			}
			return prof, nil
		},
	}
}
