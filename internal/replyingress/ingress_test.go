package replyingress

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byCustomMessageID map[string]*domain.EmailLog
	byID              map[int64]*domain.EmailLog
	domains           map[string]string // host -> ownerID

	saved []*domain.EmailReply
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byCustomMessageID: map[string]*domain.EmailLog{},
		byID:              map[int64]*domain.EmailLog{},
		domains:           map[string]string{},
	}
}

func (f *fakeStore) GetEmailLogByCustomMessageID(ctx context.Context, customMessageID string) (*domain.EmailLog, error) {
	return f.byCustomMessageID[customMessageID], nil
}

func (f *fakeStore) GetEmailLogByID(ctx context.Context, id int64) (*domain.EmailLog, error) {
	return f.byID[id], nil
}

func (f *fakeStore) GetOwnerIDByInboundDomain(ctx context.Context, host string) (string, bool, error) {
	ownerID, ok := f.domains[host]
	return ownerID, ok, nil
}

func (f *fakeStore) SaveReply(ctx context.Context, reply *domain.EmailReply) error {
	f.saved = append(f.saved, reply)
	return nil
}

func TestCorrelatesByCustomMessageIDAndVerifiesExactMatch(t *testing.T) {
	store := newFakeStore()
	store.byCustomMessageID["<isg-4242-1700000000000@example.com>"] = &domain.EmailLog{
		ID: 4242, OwnerID: "owner-1", AccountID: "acct-1", ToEmail: "user@example.com",
	}
	ing := New(store)

	msg := InboundMessage{
		To: "replies@example.com", From: "user@example.com",
		InReplyTo: "<isg-4242-1700000000000@example.com>", ReceivedAt: time.Now(),
	}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	require.NotNil(t, reply.EmailLogID)
	assert.Equal(t, int64(4242), *reply.EmailLogID)
	assert.True(t, reply.SenderVerified)
	assert.Equal(t, domain.VerificationExactMatch, reply.VerificationNotes)
}

func TestCorrelatesByPlusAddressedEnvelope(t *testing.T) {
	store := newFakeStore()
	store.byID[99] = &domain.EmailLog{ID: 99, OwnerID: "owner-1", ToEmail: "user@example.com"}
	ing := New(store)

	msg := InboundMessage{To: "reply-99@example.com", From: "user@example.com", ReceivedAt: time.Now()}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	assert.Equal(t, int64(99), *reply.EmailLogID)
}

func TestCorrelatesByEmbeddedLogIDWhenCustomMessageIDLookupMisses(t *testing.T) {
	store := newFakeStore()
	store.byID[4242] = &domain.EmailLog{ID: 4242, OwnerID: "owner-1", ToEmail: "user@example.com"}
	ing := New(store)

	msg := InboundMessage{
		To: "replies@example.com", From: "user@example.com",
		InReplyTo: "<isg-4242-1700000000000@example.com>", ReceivedAt: time.Now(),
	}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	assert.Equal(t, int64(4242), *reply.EmailLogID)
}

func TestDomainFallbackResolvesOwnerOnlyNoEmailLog(t *testing.T) {
	store := newFakeStore()
	store.domains["support.example.com"] = "owner-7"
	ing := New(store)

	msg := InboundMessage{To: "anything@support.example.com", From: "user@example.com", ReceivedAt: time.Now()}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	assert.Equal(t, "owner-7", reply.OwnerID)
	assert.Nil(t, reply.EmailLogID)
}

func TestNoCorrelationReturnsUnsuccessful(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	msg := InboundMessage{To: "nobody@unknown.com", From: "user@example.com", ReceivedAt: time.Now()}
	_, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, success)
	assert.Empty(t, store.saved)
}

func TestDomainOnlyVerificationWhenLocalPartDiffers(t *testing.T) {
	store := newFakeStore()
	store.byID[1] = &domain.EmailLog{ID: 1, OwnerID: "owner-1", ToEmail: "jane@example.com"}
	ing := New(store)

	msg := InboundMessage{To: "reply-1@example.com", From: "someone-else@example.com", ReceivedAt: time.Now()}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	assert.False(t, reply.SenderVerified)
	assert.Equal(t, domain.VerificationDomainOnly, reply.VerificationNotes)
}

func TestNoMatchVerificationWhenDomainDiffers(t *testing.T) {
	store := newFakeStore()
	store.byID[1] = &domain.EmailLog{ID: 1, OwnerID: "owner-1", ToEmail: "jane@example.com"}
	ing := New(store)

	msg := InboundMessage{To: "reply-1@example.com", From: "someone@other.com", ReceivedAt: time.Now()}
	reply, success, err := ing.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, success)
	assert.False(t, reply.SenderVerified)
	assert.Equal(t, domain.VerificationNoMatch, reply.VerificationNotes)
}
