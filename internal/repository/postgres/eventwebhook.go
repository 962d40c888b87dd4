package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/automail/internal/domain"
)

// EventStore implements eventwebhook.Store against PostgreSQL.
type EventStore struct{ db *sql.DB }

func NewEventStore(db *sql.DB) *EventStore { return &EventStore{db: db} }

func (s *EventStore) GetByMessageID(ctx context.Context, messageID string) (*domain.EmailLog, error) {
	row := s.db.QueryRowContext(ctx, emailLogSelect+` WHERE message_id = $1`, messageID)
	return scanEmailLogOrNil(row)
}

func (s *EventStore) GetByMessageIDPrefix(ctx context.Context, prefix string) (*domain.EmailLog, error) {
	row := s.db.QueryRowContext(ctx, emailLogSelect+` WHERE message_id LIKE $1 || '%' LIMIT 1`, prefix)
	return scanEmailLogOrNil(row)
}

const emailLogSelect = `
	SELECT id, owner_id, account_id, template_id, to_email, to_name, from_email, from_name, subject,
	       status, queued_at, sent_at, delivered_at, first_opened_at, first_clicked_at, bounced_at,
	       unsubscribed_at, failed_at, open_count, click_count, message_id, custom_message_id, reply_to,
	       bounce_type, error_message
	FROM email_logs`

func scanEmailLogOrNil(row rowScanner) (*domain.EmailLog, error) {
	var l domain.EmailLog
	err := row.Scan(&l.ID, &l.OwnerID, &l.AccountID, &l.TemplateID, &l.ToEmail, &l.ToName, &l.FromEmail, &l.FromName,
		&l.Subject, &l.Status, &l.QueuedAt, &l.SentAt, &l.DeliveredAt, &l.FirstOpenedAt, &l.FirstClickedAt,
		&l.BouncedAt, &l.UnsubscribedAt, &l.FailedAt, &l.OpenCount, &l.ClickCount, &l.MessageID,
		&l.CustomMessageID, &l.ReplyTo, &l.BounceType, &l.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan email log: %w", err)
	}
	return &l, nil
}

func (s *EventStore) SaveEmailLog(ctx context.Context, log *domain.EmailLog) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_logs SET
			status = $1, delivered_at = $2, first_opened_at = $3, first_clicked_at = $4,
			bounced_at = $5, unsubscribed_at = $6, open_count = $7, click_count = $8,
			bounce_type = $9, error_message = $10
		WHERE id = $11
	`, log.Status, log.DeliveredAt, log.FirstOpenedAt, log.FirstClickedAt,
		log.BouncedAt, log.UnsubscribedAt, log.OpenCount, log.ClickCount,
		log.BounceType, log.ErrorMessage, log.ID)
	if err != nil {
		return fmt.Errorf("save email log %d: %w", log.ID, err)
	}
	return nil
}

func (s *EventStore) AppendEmailEvent(ctx context.Context, ev domain.EmailEvent) error {
	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_events (id, email_log_id, url, ip_address, user_agent, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, id, ev.EmailLogID, ev.URL, ev.IPAddress, ev.UserAgent, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append email event for log %d: %w", ev.EmailLogID, err)
	}
	return nil
}

// OwnerIDForScheduledEmail resolves the tenant that queued a scheduled email.
// Unsubscribe links only carry the scheduled_email id and recipient address,
// so the landing page needs this to call MarkUnsubscribed.
func (s *EventStore) OwnerIDForScheduledEmail(ctx context.Context, scheduledEmailID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id FROM scheduled_emails WHERE id = $1
	`, scheduledEmailID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner for scheduled email %s: %w", scheduledEmailID, err)
	}
	return ownerID, nil
}

func (s *EventStore) MarkUnsubscribed(ctx context.Context, ownerID, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark unsubscribed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET opted_out = true
		WHERE owner_id = $1 AND (person_email = $2 OR email = $2)
	`, ownerID, email); err != nil {
		return fmt.Errorf("opt out account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO unsubscribe_entries (email, owner_id, source, created_at)
		VALUES ($1, $2, 'webhook', NOW())
		ON CONFLICT (owner_id, email) DO NOTHING
	`, email, ownerID); err != nil {
		return fmt.Errorf("insert unsubscribe entry: %w", err)
	}

	return tx.Commit()
}
