package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierStorePolicyQualifiesPicksColumnByTrigger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewVerifierStore(db)

	mock.ExpectQuery("expiration_date::date").
		WithArgs("acct-1", domain.PolicyActive, "2026-08-20").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.PolicyQualifies(context.Background(), "acct-1", domain.TriggerPolicyExpiration, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifierStorePolicyQualifiesAccountCreatedAlwaysQualifies(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewVerifierStore(db)

	ok, err := store.PolicyQualifies(context.Background(), "acct-1", domain.TriggerAccountCreated, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, ok, "account_created triggers have no policy to match against and always qualify")
}

func TestVerifierStoreIsUnsubscribedLowercasesEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewVerifierStore(db)

	mock.ExpectQuery("FROM unsubscribe_entries").
		WithArgs("owner-1", "jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := store.IsUnsubscribed(context.Background(), "owner-1", "Jane@Example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifierStoreMarkVerified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewVerifierStore(db)

	mock.ExpectExec("UPDATE scheduled_emails SET requires_verification").
		WithArgs("se-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.MarkVerified(context.Background(), "se-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifierStoreRecentSuccessfulSend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewVerifierStore(db)
	since := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectQuery("FROM email_logs").
		WithArgs("jane@example.com", "tmpl-1", since, domain.LogFailed, domain.LogDropped).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.RecentSuccessfulSend(context.Background(), "jane@example.com", "tmpl-1", since)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
