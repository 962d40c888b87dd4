package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/automail/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationStoreInsertScheduledEmailsToleratesDupKeyRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAutomationStore(db)
	batch := []domain.ScheduledEmail{
		{ID: "se-1", AutomationID: "auto-1", AccountID: "acct-1", TemplateID: "tmpl-1", QualificationValue: "2026-08-20", MaxAttempts: 3},
		{ID: "se-2", AutomationID: "auto-1", AccountID: "acct-2", TemplateID: "tmpl-1", QualificationValue: "2026-08-20", MaxAttempts: 3},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO scheduled_emails")
	mock.ExpectExec("INSERT INTO scheduled_emails").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scheduled_emails").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectCommit()

	err = store.InsertScheduledEmails(context.Background(), batch)
	require.NoError(t, err, "a unique-violation on one row must not fail the whole batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomationStoreInsertScheduledEmailsRollsBackOnOtherError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAutomationStore(db)
	batch := []domain.ScheduledEmail{
		{ID: "se-1", AutomationID: "auto-1", AccountID: "acct-1", TemplateID: "tmpl-1", QualificationValue: "2026-08-20", MaxAttempts: 3},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO scheduled_emails")
	mock.ExpectExec("INSERT INTO scheduled_emails").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.InsertScheduledEmails(context.Background(), batch)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomationStoreResolveTemplateKeyFallsBackToSystemDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAutomationStore(db)
	cols := []string{"id", "owner_id", "default_key", "category", "subject", "html_content", "text_content", "from_email", "from_name", "merge_fields"}

	mock.ExpectQuery("FROM email_templates").
		WithArgs("renewal_reminder", "owner-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM email_templates").
		WithArgs("renewal_reminder", "").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"tmpl-default", "", "renewal_reminder", "policy", "Your policy", "<p>hi</p>", "hi", "noreply@example.com", "Agency", pq.Array([]string{}),
		))

	tmpl, err := store.ResolveTemplateKey(context.Background(), "owner-1", "renewal_reminder")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, "tmpl-default", tmpl.ID)
}
