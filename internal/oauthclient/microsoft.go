package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/automail/internal/pkg/httpretry"
)

// MicrosoftAdapter implements Adapter against Azure AD's v2 token endpoint.
// No Microsoft SDK is among this module's dependencies (see DESIGN.md), so this is
// hand-rolled HTTP in the same raw-HTTP ESP-sender idiom used elsewhere
// in this codebase, wrapped in the shared retry client.
type MicrosoftAdapter struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tenantID     string
	scopes       []string
	client       httpretry.HTTPDoer
}

// NewMicrosoftAdapter builds a MicrosoftAdapter for the given Azure AD tenant.
func NewMicrosoftAdapter(clientID, clientSecret, redirectURI, tenantID string, scopes []string) *MicrosoftAdapter {
	return &MicrosoftAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		tenantID:     tenantID,
		scopes:       scopes,
		client:       httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3),
	}
}

func (m *MicrosoftAdapter) tokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", m.tenantID)
}

// AuthCodeURL builds the consent-screen URL for the initiate flow.
func (m *MicrosoftAdapter) AuthCodeURL(state string) string {
	v := url.Values{}
	v.Set("client_id", m.clientID)
	v.Set("response_type", "code")
	v.Set("redirect_uri", m.redirectURI)
	v.Set("response_mode", "query")
	v.Set("scope", strings.Join(m.scopes, " "))
	v.Set("state", state)
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize?%s", m.tenantID, v.Encode())
}

func (m *MicrosoftAdapter) Exchange(ctx context.Context, code string) (TokenSet, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", m.redirectURI)
	form.Set("grant_type", "authorization_code")
	form.Set("scope", strings.Join(m.scopes, " "))
	return m.postForm(ctx, form)
}

func (m *MicrosoftAdapter) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("scope", strings.Join(m.scopes, " "))
	return m.postForm(ctx, form)
}

func (m *MicrosoftAdapter) postForm(ctx context.Context, form url.Values) (TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauthclient: microsoft token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return TokenSet{}, err
	}
	if body.Error != "" {
		return TokenSet{}, fmt.Errorf("oauthclient: microsoft error %s: %s", body.Error, body.ErrorDesc)
	}
	return TokenSet{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    time.Duration(body.ExpiresIn) * time.Second,
	}, nil
}

func (m *MicrosoftAdapter) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://graph.microsoft.com/v1.0/me", nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("oauthclient: microsoft userinfo: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ID   string `json:"id"`
		Mail string `json:"mail"`
		UPN  string `json:"userPrincipalName"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return UserInfo{}, err
	}
	email := body.Mail
	if email == "" {
		email = body.UPN
	}
	return UserInfo{ProviderUserID: body.ID, Email: email}, nil
}

func (m *MicrosoftAdapter) Revoke(ctx context.Context, accessToken string) error {
	// Microsoft Graph has no per-token revoke endpoint comparable to
	// Google's; best-effort no-op, matching the §4.2 "best-effort" contract.
	_ = accessToken
	return nil
}
