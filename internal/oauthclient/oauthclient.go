// Package oauthclient provides a provider-agnostic OAuth2 adapter for
// mailbox connection. It never reads or writes the store — callers persist
// TokenSet via internal/crypto and internal/repository/postgres.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// TokenSet is the provider-neutral result of an exchange or refresh call.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // empty on a refresh response that didn't rotate it
	ExpiresIn    time.Duration
}

// UserInfo is the provider-neutral result of a userinfo call.
type UserInfo struct {
	ProviderUserID string
	Email          string
}

// Adapter is the common capability set every provider exposes. The
// scheduler and dispatcher never reference a specific provider; only
// internal/inbox picks one by ProviderConnection.Provider.
type Adapter interface {
	Exchange(ctx context.Context, code string) (TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
	UserInfo(ctx context.Context, accessToken string) (UserInfo, error)
	Revoke(ctx context.Context, accessToken string) error
}

// State is the opaque JSON blob carried in the OAuth state parameter.
type State struct {
	OwnerID      string `json:"owner_id"`
	RedirectAfter string `json:"redirect_after"`
}

// EncodeState serializes a State for use as the OAuth state query param.
func EncodeState(s State) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("oauthclient: encode state: %w", err)
	}
	return string(b), nil
}

// DecodeState parses the state parameter returned by the provider callback.
func DecodeState(raw string) (State, error) {
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return State{}, fmt.Errorf("oauthclient: decode state: %w", err)
	}
	return s, nil
}

// RedirectURI builds the mandatory path-based callback URL:
// {base}/{provider}/callback — never query-string, per §4.2.
func RedirectURI(base string, provider domain.ProviderType) string {
	return fmt.Sprintf("%s/%s/callback", base, provider)
}

// Registry resolves a ProviderType to its Adapter.
type Registry struct {
	adapters map[domain.ProviderType]Adapter
}

// NewRegistry builds a Registry from the configured provider adapters.
func NewRegistry(google, microsoft Adapter) *Registry {
	return &Registry{adapters: map[domain.ProviderType]Adapter{
		domain.ProviderGmail:     google,
		domain.ProviderMicrosoft: microsoft,
	}}
}

// For returns the adapter for provider, or false if none is registered.
func (r *Registry) For(provider domain.ProviderType) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}
