// Package oauth implements Google and GitHub sign-in on top of x/oauth2.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/sharow/sharow/internal/domain"
)

// Provider is a generic authorization-code provider with PKCE.
type Provider struct {
	name    string
	config  *oauth2.Config
	profile func(ctx context.Context, client *http.Client) (domain.OAuthProfile, error)
}

// Name is the route segment for the provider, e.g. "google".
func (p *Provider) Name() string { return p.name }

// AuthCodeURL is the consent URL the browser is redirected to.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the callback code for a token and loads the user's profile.
func (p *Provider) Exchange(ctx domain.Context, code, verifier string) (domain.OAuthProfile, error) {
	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("op=oauth.%s.Exchange: %w", p.name, err)
	}
	prof, err := p.profile(ctx, p.config.Client(ctx, tok))
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("op=oauth.%s.Profile: %w", p.name, err)
	}
	prof.Provider = p.name
	return prof, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
