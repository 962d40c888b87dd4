package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows     []domain.ScheduledEmail
	reserved map[string]bool

	accounts  map[string]*domain.Account
	templates map[string]*domain.EmailTemplate
	owners    map[string]*domain.Owner

	recentSend bool

	logs       []domain.EmailLog
	nextLogID  int64
	logsSent   map[int64]string
	logsFailed map[int64]string

	scheduledSent   map[string]int64
	scheduledFailed map[string]struct {
		retry bool
		msg   string
	}
	cancelled map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reserved:        map[string]bool{},
		accounts:        map[string]*domain.Account{},
		templates:       map[string]*domain.EmailTemplate{},
		owners:          map[string]*domain.Owner{},
		nextLogID:       1,
		logsSent:        map[int64]string{},
		logsFailed:      map[int64]string{},
		scheduledSent:   map[string]int64{},
		cancelled:       map[string]string{},
		scheduledFailed: map[string]struct {
			retry bool
			msg   string
		}{},
	}
}

func (f *fakeStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledEmail, error) {
	return f.rows, nil
}

func (f *fakeStore) Reserve(ctx context.Context, id string, now time.Time) (domain.ScheduledEmail, bool, error) {
	if f.reserved[id] {
		return domain.ScheduledEmail{}, false, nil
	}
	f.reserved[id] = true
	for _, r := range f.rows {
		if r.ID == id {
			r.Status = domain.ScheduledProcessing
			r.Attempts++
			return r, true, nil
		}
	}
	return domain.ScheduledEmail{}, false, nil
}

func (f *fakeStore) RecentSuccessfulSend(ctx context.Context, recipientEmail, templateID string, since time.Time) (bool, error) {
	return f.recentSend, nil
}

func (f *fakeStore) CancelScheduled(ctx context.Context, id string, reason string) error {
	f.cancelled[id] = reason
	return nil
}

func (f *fakeStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return f.accounts[id], nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	return f.templates[id], nil
}

func (f *fakeStore) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	return f.owners[id], nil
}

func (f *fakeStore) CreateEmailLog(ctx context.Context, log *domain.EmailLog) (int64, error) {
	id := f.nextLogID
	f.nextLogID++
	log.ID = id
	f.logs = append(f.logs, *log)
	return id, nil
}

func (f *fakeStore) MarkEmailLogSent(ctx context.Context, id int64, providerMessageID, customMessageID string, sentAt time.Time) error {
	f.logsSent[id] = providerMessageID
	return nil
}

func (f *fakeStore) MarkEmailLogFailed(ctx context.Context, id int64, errMsg string) error {
	f.logsFailed[id] = errMsg
	return nil
}

func (f *fakeStore) MarkScheduledSent(ctx context.Context, id string, emailLogID int64) error {
	f.scheduledSent[id] = emailLogID
	return nil
}

func (f *fakeStore) MarkScheduledFailed(ctx context.Context, id string, retry bool, errMsg string) error {
	f.scheduledFailed[id] = struct {
		retry bool
		msg   string
	}{retry, errMsg}
	return nil
}

type stubSender struct {
	result  SendResult
	err     error
	calls   int
	lastMsg OutboundMessage
}

func (s *stubSender) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	s.calls++
	s.lastMsg = msg
	return s.result, s.err
}

func baseRow() domain.ScheduledEmail {
	return domain.ScheduledEmail{
		ID: "se-1", OwnerID: "owner-1", AutomationID: "auto-1", AccountID: "acct-1",
		TemplateID: "tmpl-1", RecipientEmail: "jane@example.com", RecipientName: "Jane",
		FromEmail: "agent@example.com", FromName: "Agent", Subject: "Hi",
		Status: domain.ScheduledPending, MaxAttempts: domain.DefaultMaxAttempts,
		QualificationValue: "2026-08-20",
	}
}

func seed(store *fakeStore, row domain.ScheduledEmail) {
	store.rows = []domain.ScheduledEmail{row}
	store.accounts[row.AccountID] = &domain.Account{ID: row.AccountID, FirstName: "Jane", PersonEmail: row.RecipientEmail}
	store.templates[row.TemplateID] = &domain.EmailTemplate{ID: row.TemplateID, HTMLContent: "Hello {{first_name}}", TextContent: "Hello {{first_name}}", Subject: row.Subject}
	store.owners[row.OwnerID] = &domain.Owner{ID: row.OwnerID, Name: "Acme Co", Email: "owner@example.com"}
}

func TestDispatcherSendsAndAdvancesToSent(t *testing.T) {
	store := newFakeStore()
	seed(store, baseRow())
	sender := &stubSender{result: SendResult{ProviderMessageID: "sg-123"}}
	d := New(store, sender, "https://unsub.example.com")

	errs, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, int64(1), store.scheduledSent["se-1"])
	assert.Equal(t, "sg-123", store.logsSent[1])
	assert.Empty(t, store.cancelled)
}

func TestDispatcherLosingReservationRaceSkipsRow(t *testing.T) {
	store := newFakeStore()
	row := baseRow()
	seed(store, row)
	store.reserved[row.ID] = true // simulate another dispatcher already claimed it
	sender := &stubSender{result: SendResult{ProviderMessageID: "sg-123"}}
	d := New(store, sender, "https://unsub.example.com")

	errs, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, 0, sender.calls)
	assert.Empty(t, store.scheduledSent)
}

func TestDispatcherRecencySuppressionCancels(t *testing.T) {
	store := newFakeStore()
	seed(store, baseRow())
	store.recentSend = true
	sender := &stubSender{result: SendResult{ProviderMessageID: "sg-123"}}
	d := New(store, sender, "https://unsub.example.com")

	errs, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, 0, sender.calls)
	assert.Equal(t, "Template already sent to this recipient within 7 days", store.cancelled["se-1"])
	assert.Empty(t, store.logs, "no EmailLog may be created once recency suppression cancels the row")
}

func TestDispatcherRetriesOnFailureWhenAttemptsRemain(t *testing.T) {
	store := newFakeStore()
	row := baseRow()
	row.Attempts = 0 // Reserve bumps to 1, still < MaxAttempts(3)
	seed(store, row)
	sender := &stubSender{err: fmt.Errorf("connection reset")}
	d := New(store, sender, "https://unsub.example.com")

	errs, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.True(t, store.scheduledFailed["se-1"].retry)
	assert.Equal(t, "connection reset", store.logsFailed[1])
}

func TestDispatcherFailsTerminallyWhenAttemptsExhausted(t *testing.T) {
	store := newFakeStore()
	row := baseRow()
	row.Attempts = row.MaxAttempts // Reserve bumps past the ceiling
	seed(store, row)
	sender := &stubSender{err: fmt.Errorf("connection reset")}
	d := New(store, sender, "https://unsub.example.com")

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, store.scheduledFailed["se-1"].retry)
}

func TestDispatcherDryRunAdvancesToSentWithSyntheticID(t *testing.T) {
	store := newFakeStore()
	seed(store, baseRow())
	d := New(store, NullSender{}, "https://unsub.example.com")

	errs, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, int64(1), store.scheduledSent["se-1"])
	assert.Contains(t, store.logsSent[1], "dry-run-")
}

func TestDispatcherMessageIDUsesSenderDomain(t *testing.T) {
	store := newFakeStore()
	row := baseRow()
	row.FromEmail = "alerts@sendgrid-test.com"
	seed(store, row)
	sender := &stubSender{result: SendResult{ProviderMessageID: "sg-1"}}
	d := New(store, sender, "https://unsub.example.com")

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.logs, 1)
	assert.Contains(t, sender.lastMsg.MessageID, "@sendgrid-test.com>")
	assert.Equal(t, "alerts@sendgrid-test.com", sender.lastMsg.ReplyTo)
}
