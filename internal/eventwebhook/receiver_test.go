package eventwebhook

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	logs          map[string]*domain.EmailLog // keyed by MessageID
	events        []domain.EmailEvent
	unsubscribed  map[string]string // email -> ownerID
}

func newFakeStore() *fakeStore {
	return &fakeStore{logs: map[string]*domain.EmailLog{}, unsubscribed: map[string]string{}}
}

func (f *fakeStore) GetByMessageID(ctx context.Context, messageID string) (*domain.EmailLog, error) {
	return f.logs[messageID], nil
}

func (f *fakeStore) GetByMessageIDPrefix(ctx context.Context, prefix string) (*domain.EmailLog, error) {
	for id, l := range f.logs {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SaveEmailLog(ctx context.Context, log *domain.EmailLog) error {
	f.logs[log.MessageID] = log
	return nil
}

func (f *fakeStore) AppendEmailEvent(ctx context.Context, ev domain.EmailEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) MarkUnsubscribed(ctx context.Context, ownerID, email string) error {
	f.unsubscribed[email] = ownerID
	return nil
}

type fakeSuppressor struct {
	suppressed map[string]string
}

func newFakeSuppressor() *fakeSuppressor { return &fakeSuppressor{suppressed: map[string]string{}} }

func (f *fakeSuppressor) Suppress(ctx context.Context, email, reason string) error {
	f.suppressed[email] = reason
	return nil
}

func seedLog(store *fakeStore, status domain.EmailLogStatus) *domain.EmailLog {
	l := &domain.EmailLog{ID: 1, OwnerID: "owner-1", ToEmail: "jane@example.com", MessageID: "msg-123", Status: status}
	store.logs[l.MessageID] = l
	return l
}

func TestDeliveredAdvancesStatus(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogSent)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "delivered", SGMessageID: "msg-123", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogDelivered, store.logs["msg-123"].Status)
}

func TestMessageIDFilterSuffixIsStripped(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogSent)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "delivered", SGMessageID: "msg-123.filter42", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogDelivered, store.logs["msg-123"].Status)
}

func TestOpenSetsStatusOnlyFromSentOrDelivered(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogClicked)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "open", SGMessageID: "msg-123", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogClicked, store.logs["msg-123"].Status, "open must never regress Clicked back to Opened")
	assert.Equal(t, 1, store.logs["msg-123"].OpenCount)
}

func TestClickAppendsEmailEventAndAdvancesStatus(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogDelivered)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "click", SGMessageID: "msg-123", URL: "https://x", IP: "1.2.3.4", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogClicked, store.logs["msg-123"].Status)
	assert.Equal(t, 1, store.logs["msg-123"].ClickCount)
	assert.Len(t, store.events, 1)
	assert.Equal(t, "https://x", store.events[0].URL)
}

func TestHardBounceSuppressesAddress(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogSent)
	supp := newFakeSuppressor()
	r := New(store, supp)

	errs := r.Process(context.Background(), []Event{{Event: "bounce", SGMessageID: "msg-123", Type: "bounce", Reason: "mailbox full", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogBounced, store.logs["msg-123"].Status)
	assert.Equal(t, "hard bounce", supp.suppressed["jane@example.com"])
}

func TestSoftBounceDoesNotSuppress(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogSent)
	supp := newFakeSuppressor()
	r := New(store, supp)

	errs := r.Process(context.Background(), []Event{{Event: "bounce", SGMessageID: "msg-123", Type: "blocked", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Empty(t, supp.suppressed)
}

func TestUnsubscribeMarksAccountOptedOut(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogOpened)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "unsubscribe", SGMessageID: "msg-123", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogUnsubscribed, store.logs["msg-123"].Status)
	assert.Equal(t, "owner-1", store.unsubscribed["jane@example.com"])
}

func TestDeferredNeverMutatesStatus(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogSent)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "deferred", SGMessageID: "msg-123", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogSent, store.logs["msg-123"].Status)
}

func TestTerminalStateAbsorbsFurtherEvents(t *testing.T) {
	store := newFakeStore()
	seedLog(store, domain.LogBounced)
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "open", SGMessageID: "msg-123", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
	assert.Equal(t, domain.LogBounced, store.logs["msg-123"].Status)
	assert.Equal(t, 0, store.logs["msg-123"].OpenCount)
}

func TestUnknownMessageIDIsLoggedNotErrored(t *testing.T) {
	store := newFakeStore()
	r := New(store, newFakeSuppressor())

	errs := r.Process(context.Background(), []Event{{Event: "delivered", SGMessageID: "no-such-id", Timestamp: time.Now().Unix()}})
	assert.Empty(t, errs)
}
