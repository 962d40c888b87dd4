package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// DispatcherStore implements dispatcher.Store against PostgreSQL.
type DispatcherStore struct{ db *sql.DB }

func NewDispatcherStore(db *sql.DB) *DispatcherStore { return &DispatcherStore{db: db} }

func (s *DispatcherStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledEmail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, automation_id, account_id, template_id, node_id,
		       recipient_email, recipient_name, from_email, from_name, subject,
		       scheduled_for, status, requires_verification, qualification_value,
		       trigger_field, attempts, max_attempts, last_attempt_at, error_message, email_log_id
		FROM scheduled_emails
		WHERE status = $1 AND requires_verification = false AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3
	`, domain.ScheduledPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
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

// Reserve uses a conditional UPDATE keyed on status = Pending as the CAS:
// only the dispatcher instance whose UPDATE actually affects a row wins the
// claim. This avoids holding a transaction open across the network
// round-trip to the ESP, unlike a SELECT ... FOR UPDATE SKIP LOCKED claim.
func (s *DispatcherStore) Reserve(ctx context.Context, id string, now time.Time) (domain.ScheduledEmail, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_emails
		SET status = $1, attempts = attempts + 1, last_attempt_at = $2
		WHERE id = $3 AND status = $4
	`, domain.ScheduledProcessing, now, id, domain.ScheduledPending)
	if err != nil {
		return domain.ScheduledEmail{}, false, fmt.Errorf("reserve %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ScheduledEmail{}, false, fmt.Errorf("reserve %s rows affected: %w", id, err)
	}
	if n == 0 {
		return domain.ScheduledEmail{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, automation_id, account_id, template_id, node_id,
		       recipient_email, recipient_name, from_email, from_name, subject,
		       scheduled_for, status, requires_verification, qualification_value,
		       trigger_field, attempts, max_attempts, last_attempt_at, error_message, email_log_id
		FROM scheduled_emails WHERE id = $1
	`, id)
	var r domain.ScheduledEmail
	if err := row.Scan(&r.ID, &r.OwnerID, &r.AutomationID, &r.AccountID, &r.TemplateID, &r.NodeID,
		&r.RecipientEmail, &r.RecipientName, &r.FromEmail, &r.FromName, &r.Subject,
		&r.ScheduledFor, &r.Status, &r.RequiresVerification, &r.QualificationValue,
		&r.TriggerField, &r.Attempts, &r.MaxAttempts, &r.LastAttemptAt, &r.ErrorMessage, &r.EmailLogID); err != nil {
		return domain.ScheduledEmail{}, false, fmt.Errorf("reload reserved row %s: %w", id, err)
	}
	return r, true, nil
}

func (s *DispatcherStore) RecentSuccessfulSend(ctx context.Context, recipientEmail, templateID string, since time.Time) (bool, error) {
	return recentSuccessfulSend(ctx, s.db, recipientEmail, templateID, since)
}

func (s *DispatcherStore) CancelScheduled(ctx context.Context, id string, reason string) error {
	return cancelScheduled(ctx, s.db, id, reason)
}

func (s *DispatcherStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return getAccount(ctx, s.db, id)
}

func (s *DispatcherStore) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	return (&AutomationStore{db: s.db}).GetTemplate(ctx, id)
}

func (s *DispatcherStore) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	return getOwner(ctx, s.db, id)
}

func getOwner(ctx context.Context, db *sql.DB, id string) (*domain.Owner, error) {
	var o domain.Owner
	err := db.QueryRowContext(ctx, `
		SELECT id, name, email, time_zone, address, phone, website, created_at
		FROM owners WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.Email, &o.TimeZone, &o.Address, &o.Phone, &o.Website, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner %s: %w", id, err)
	}
	return &o, nil
}

func (s *DispatcherStore) CreateEmailLog(ctx context.Context, log *domain.EmailLog) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO email_logs
			(owner_id, account_id, template_id, to_email, to_name, from_email, from_name,
			 subject, status, queued_at, reply_to, custom_message_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, log.OwnerID, log.AccountID, log.TemplateID, log.ToEmail, log.ToName, log.FromEmail, log.FromName,
		log.Subject, log.Status, log.QueuedAt, log.ReplyTo, log.CustomMessageID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create email log: %w", err)
	}
	return id, nil
}

func (s *DispatcherStore) MarkEmailLogSent(ctx context.Context, id int64, providerMessageID, customMessageID string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = $1, sent_at = $2, message_id = $3, custom_message_id = $4
		WHERE id = $5
	`, domain.LogSent, sentAt, providerMessageID, customMessageID, id)
	if err != nil {
		return fmt.Errorf("mark email log sent %d: %w", id, err)
	}
	return nil
}

func (s *DispatcherStore) MarkEmailLogFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_logs SET status = $1, failed_at = NOW(), error_message = $2 WHERE id = $3
	`, domain.LogFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark email log failed %d: %w", id, err)
	}
	return nil
}

func (s *DispatcherStore) MarkScheduledSent(ctx context.Context, id string, emailLogID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_emails SET status = $1, email_log_id = $2 WHERE id = $3
	`, domain.ScheduledSent, emailLogID, id)
	if err != nil {
		return fmt.Errorf("mark scheduled sent %s: %w", id, err)
	}
	return nil
}

func (s *DispatcherStore) MarkScheduledFailed(ctx context.Context, id string, retry bool, errMsg string) error {
	status := domain.ScheduledFailed
	if retry {
		status = domain.ScheduledPending
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_emails SET status = $1, error_message = $2 WHERE id = $3
	`, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark scheduled failed %s: %w", id, err)
	}
	return nil
}
