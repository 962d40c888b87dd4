package oauthclient

import (
	"testing"

	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateEncodeDecodeRoundTrip(t *testing.T) {
	s := State{OwnerID: "owner-1", RedirectAfter: "/settings/mailboxes"}
	raw, err := EncodeState(s)
	require.NoError(t, err)

	got, err := DecodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	_, err := DecodeState("not-json")
	assert.Error(t, err)
}

func TestRedirectURI(t *testing.T) {
	got := RedirectURI("https://api.example.com/email-oauth", domain.ProviderGmail)
	assert.Equal(t, "https://api.example.com/email-oauth/gmail/callback", got)
}

func TestRegistryFor(t *testing.T) {
	google := NewGoogleAdapter("cid", "secret", "https://api.example.com/email-oauth/gmail/callback", []string{"email"})
	microsoft := NewMicrosoftAdapter("cid", "secret", "https://api.example.com/email-oauth/microsoft/callback", "common", []string{"email"})
	reg := NewRegistry(google, microsoft)

	a, ok := reg.For(domain.ProviderGmail)
	require.True(t, ok)
	assert.Same(t, google, a)

	a, ok = reg.For(domain.ProviderMicrosoft)
	require.True(t, ok)
	assert.Same(t, microsoft, a)

	_, ok = reg.For(domain.ProviderType("unknown"))
	assert.False(t, ok)
}

func TestMicrosoftAuthCodeURL(t *testing.T) {
	m := NewMicrosoftAdapter("cid", "secret", "https://api.example.com/email-oauth/microsoft/callback", "contoso", []string{"Mail.Send", "offline_access"})
	got := m.AuthCodeURL("state-123")
	assert.Contains(t, got, "https://login.microsoftonline.com/contoso/oauth2/v2.0/authorize?")
	assert.Contains(t, got, "client_id=cid")
	assert.Contains(t, got, "state=state-123")
	assert.Contains(t, got, "response_mode=query")
}

func TestMicrosoftTokenURL(t *testing.T) {
	m := NewMicrosoftAdapter("cid", "secret", "redirect", "contoso", nil)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", m.tokenURL())
}
