package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleAdapter exchanges/refreshes tokens via Google's OAuth2 endpoint and
// requests offline access + forced consent so the initial exchange always
// yields a refresh token.
type GoogleAdapter struct {
	cfg *oauth2.Config
}

// NewGoogleAdapter builds a GoogleAdapter. redirectURI must be path-based
// per RedirectURI.
func NewGoogleAdapter(clientID, clientSecret, redirectURI string, scopes []string) *GoogleAdapter {
	return &GoogleAdapter{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}}
}

// AuthCodeURL builds the consent-screen URL for the initiate flow, forcing
// offline access and re-consent so a refresh token is always issued.
func (g *GoogleAdapter) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *GoogleAdapter) Exchange(ctx context.Context, code string) (TokenSet, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauthclient: google exchange: %w", err)
	}
	return tokenSetFrom(tok), nil
}

func (g *GoogleAdapter) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	src := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauthclient: google refresh: %w", err)
	}
	return tokenSetFrom(tok), nil
}

func (g *GoogleAdapter) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	client := g.cfg.Client(ctx, &oauth2.Token{AccessToken: accessToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return UserInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("oauthclient: google userinfo: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return UserInfo{}, err
	}
	return UserInfo{ProviderUserID: body.ID, Email: body.Email}, nil
}

func (g *GoogleAdapter) Revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://oauth2.googleapis.com/revoke?token="+accessToken, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil // best-effort per §4.2
	}
	defer resp.Body.Close()
	return nil
}

func tokenSetFrom(tok *oauth2.Token) TokenSet {
	var ttl time.Duration
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	return TokenSet{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresIn: ttl}
}
