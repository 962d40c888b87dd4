package inbox

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ignite/automail/internal/crypto"
	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/oauthclient"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	conn        *domain.ProviderConnection
	owner       *domain.Owner
	verifiedDom string
	hasVerified bool
	updated     []*domain.ProviderConnection
}

func (f *fakeStore) GetActiveConnection(ctx context.Context, ownerID string) (*domain.ProviderConnection, error) {
	return f.conn, nil
}
func (f *fakeStore) UpdateConnection(ctx context.Context, conn *domain.ProviderConnection) error {
	f.updated = append(f.updated, conn)
	return nil
}
func (f *fakeStore) GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	return f.owner, nil
}
func (f *fakeStore) GetVerifiedSenderDomain(ctx context.Context, ownerID string) (string, bool, error) {
	return f.verifiedDom, f.hasVerified, nil
}

type fakeForwardSender struct {
	calls []ForwardMessage
	err   error
}

func (f *fakeForwardSender) Send(ctx context.Context, msg ForwardMessage) error {
	f.calls = append(f.calls, msg)
	return f.err
}

type fakeInjector struct {
	id  string
	err error
}

func (f *fakeInjector) Inject(ctx context.Context, accessToken, ownerEmail string, msg Message) (string, error) {
	return f.id, f.err
}

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()
	v, err := crypto.NewVault(strings.Repeat("0123456789abcdef", 4))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return v
}

func TestDeliverFallsBackWhenNoActiveConnection(t *testing.T) {
	store := &fakeStore{owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com", Name: "Acme"}}
	fwd := &fakeForwardSender{}
	svc := New(store, testVault(t), oauthclient.NewRegistry(nil, nil), fwd)

	outcome := svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", FromName: "User", Subject: "Hi", BodyHTML: "<p>hi</p>", ReceivedAt: time.Now()})
	assert.True(t, outcome.Injected)
	assert.Equal(t, domain.InjectionSendGridFallback, outcome.Provider)
	assert.Len(t, fwd.calls, 1)
	assert.Equal(t, "owner@example.com", fwd.calls[0].To)
	assert.Equal(t, "user@example.com", fwd.calls[0].ReplyTo)
}

func TestDeliverUsesVerifiedDomainInFallbackFrom(t *testing.T) {
	store := &fakeStore{owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com"}, verifiedDom: "sales.example.com", hasVerified: true}
	fwd := &fakeForwardSender{}
	svc := New(store, testVault(t), oauthclient.NewRegistry(nil, nil), fwd)

	svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", Subject: "Hi", BodyHTML: "body", ReceivedAt: time.Now()})
	assert.Equal(t, "replies@sales.example.com", fwd.calls[0].From)
}

func TestDeliverPrefixesSubjectWithReWhenAbsent(t *testing.T) {
	store := &fakeStore{owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com"}}
	fwd := &fakeForwardSender{}
	svc := New(store, testVault(t), oauthclient.NewRegistry(nil, nil), fwd)

	svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", Subject: "Question", BodyHTML: "body", ReceivedAt: time.Now()})
	assert.Equal(t, "Re: Question", fwd.calls[0].Subject)
}

func TestDeliverInjectsViaGmailWhenConnectionActive(t *testing.T) {
	vault := testVault(t)
	encAccess, _ := vault.Encrypt("access-token")
	store := &fakeStore{
		conn: &domain.ProviderConnection{
			Provider: domain.ProviderGmail, Status: domain.ConnectionActive,
			EncryptedAccess: encAccess, TokenExpiresAt: time.Now().Add(time.Hour),
		},
		owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com"},
	}
	fwd := &fakeForwardSender{}
	svc := New(store, vault, oauthclient.NewRegistry(nil, nil), fwd)
	svc.gmail = &fakeInjector{id: "gmail-msg-1"}

	outcome := svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", Subject: "Hi", BodyHTML: "body", ReceivedAt: time.Now()})
	assert.True(t, outcome.Injected)
	assert.Equal(t, domain.InjectionGmail, outcome.Provider)
	assert.Empty(t, fwd.calls, "no fallback forward should run on a successful injection")
	assert.Len(t, store.updated, 1, "last_used_at should be stamped on success")
}

func TestDeliverFallsBackWhenInjectionFails(t *testing.T) {
	vault := testVault(t)
	encAccess, _ := vault.Encrypt("access-token")
	store := &fakeStore{
		conn: &domain.ProviderConnection{
			Provider: domain.ProviderGmail, Status: domain.ConnectionActive,
			EncryptedAccess: encAccess, TokenExpiresAt: time.Now().Add(time.Hour),
		},
		owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com"},
	}
	fwd := &fakeForwardSender{}
	svc := New(store, vault, oauthclient.NewRegistry(nil, nil), fwd)
	svc.gmail = &fakeInjector{err: fmt.Errorf("quota exceeded")}

	outcome := svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", Subject: "Hi", BodyHTML: "body", ReceivedAt: time.Now()})
	assert.True(t, outcome.Injected)
	assert.Equal(t, domain.InjectionSendGridFallback, outcome.Provider)
	assert.Len(t, fwd.calls, 1)
}

func TestDeliverReportsFailureWhenForwardAlsoFails(t *testing.T) {
	store := &fakeStore{owner: &domain.Owner{ID: "owner-1", Email: "owner@example.com"}}
	fwd := &fakeForwardSender{err: fmt.Errorf("provider down")}
	svc := New(store, testVault(t), oauthclient.NewRegistry(nil, nil), fwd)

	outcome := svc.Deliver(context.Background(), "owner-1", Message{FromEmail: "user@example.com", Subject: "Hi", BodyHTML: "body", ReceivedAt: time.Now()})
	assert.False(t, outcome.Injected)
	assert.Contains(t, outcome.Error, "forward also failed")
}
