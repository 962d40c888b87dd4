package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// VerifierStore implements verifier.Store against PostgreSQL.
type VerifierStore struct{ db *sql.DB }

func NewVerifierStore(db *sql.DB) *VerifierStore { return &VerifierStore{db: db} }

func (s *VerifierStore) ListPendingVerification(ctx context.Context, now, windowEnd time.Time, limit int) ([]domain.ScheduledEmail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, automation_id, account_id, template_id, node_id,
		       recipient_email, recipient_name, from_email, from_name, subject,
		       scheduled_for, status, requires_verification, qualification_value,
		       trigger_field, attempts, max_attempts, last_attempt_at, error_message, email_log_id
		FROM scheduled_emails
		WHERE status = $1 AND requires_verification = true
		  AND scheduled_for > $2 AND scheduled_for <= $3
		ORDER BY scheduled_for ASC
		LIMIT $4
	`, domain.ScheduledPending, now, windowEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending verification: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduledEmail
	for rows.Next() {
		row, err := scanScheduledEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanScheduledEmail(rows *sql.Rows) (domain.ScheduledEmail, error) {
	var r domain.ScheduledEmail
	err := rows.Scan(&r.ID, &r.OwnerID, &r.AutomationID, &r.AccountID, &r.TemplateID, &r.NodeID,
		&r.RecipientEmail, &r.RecipientName, &r.FromEmail, &r.FromName, &r.Subject,
		&r.ScheduledFor, &r.Status, &r.RequiresVerification, &r.QualificationValue,
		&r.TriggerField, &r.Attempts, &r.MaxAttempts, &r.LastAttemptAt, &r.ErrorMessage, &r.EmailLogID)
	return r, err
}

func (s *VerifierStore) GetAutomation(ctx context.Context, id string) (*domain.Automation, error) {
	return (&AutomationStore{db: s.db}).GetAutomation(ctx, id)
}

func (s *VerifierStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, db *sql.DB, id string) (*domain.Account, error) {
	var a domain.Account
	err := db.QueryRowContext(ctx, `
		SELECT account_id, owner_id, name, person_email, email, first_name, last_name,
		       address, city, state, zip, phone, opted_out,
		       validation_status, validation_score, validated_at, created_at
		FROM accounts WHERE account_id = $1
	`, id).Scan(&a.ID, &a.OwnerID, &a.Name, &a.PersonEmail, &a.Email, &a.FirstName, &a.LastName,
		&a.Address, &a.City, &a.State, &a.Zip, &a.Phone, &a.OptedOut,
		&a.ValidationStatus, &a.ValidationScore, &a.ValidatedAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &a, nil
}

func (s *VerifierStore) IsUnsubscribed(ctx context.Context, ownerID, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM unsubscribe_entries WHERE owner_id = $1 AND email = $2)
	`, ownerID, strings.ToLower(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is unsubscribed: %w", err)
	}
	return exists, nil
}

func (s *VerifierStore) PolicyQualifies(ctx context.Context, accountID string, trigger domain.TriggerField, qualificationValue string) (bool, error) {
	var column string
	switch trigger {
	case domain.TriggerPolicyExpiration:
		column = "expiration_date"
	case domain.TriggerPolicyEffective:
		column = "effective_date"
	default:
		return true, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM policies
			WHERE account_id = $1 AND status = $2 AND %s::date = $3::date
		)
	`, column), accountID, domain.PolicyActive, qualificationValue).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("policy qualifies: %w", err)
	}
	return exists, nil
}

func (s *VerifierStore) RecentSuccessfulSend(ctx context.Context, recipientEmail, templateID string, since time.Time) (bool, error) {
	return recentSuccessfulSend(ctx, s.db, recipientEmail, templateID, since)
}

func recentSuccessfulSend(ctx context.Context, db *sql.DB, recipientEmail, templateID string, since time.Time) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM email_logs
			WHERE to_email = $1 AND template_id = $2 AND sent_at >= $3
			  AND status NOT IN ($4, $5)
		)
	`, recipientEmail, templateID, since, domain.LogFailed, domain.LogDropped).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent successful send: %w", err)
	}
	return exists, nil
}

func (s *VerifierStore) MarkVerified(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_emails SET requires_verification = false WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark verified %s: %w", id, err)
	}
	return nil
}

func (s *VerifierStore) Cancel(ctx context.Context, id string, reason string) error {
	return cancelScheduled(ctx, s.db, id, reason)
}

func cancelScheduled(ctx context.Context, db *sql.DB, id, reason string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE scheduled_emails SET status = $1, error_message = $2 WHERE id = $3
	`, domain.ScheduledCancelled, reason, id)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return nil
}
