package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStoreMarkUnsubscribedOptsOutAccountAndRecordsEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET opted_out").
		WithArgs("owner-1", "jane@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO unsubscribe_entries").
		WithArgs("jane@example.com", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.MarkUnsubscribed(context.Background(), "owner-1", "jane@example.com")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreOwnerIDForScheduledEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(db)

	mock.ExpectQuery("SELECT owner_id FROM scheduled_emails").
		WithArgs("se-1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))

	ownerID, err := store.OwnerIDForScheduledEmail(context.Background(), "se-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", ownerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreOwnerIDForScheduledEmailReturnsEmptyWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(db)

	mock.ExpectQuery("SELECT owner_id FROM scheduled_emails").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	ownerID, err := store.OwnerIDForScheduledEmail(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, ownerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreMarkUnsubscribedRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET opted_out").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.MarkUnsubscribed(context.Background(), "owner-1", "jane@example.com")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
