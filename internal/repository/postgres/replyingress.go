package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/automail/internal/domain"
)

// ReplyStore implements replyingress.Store against PostgreSQL.
type ReplyStore struct{ db *sql.DB }

func NewReplyStore(db *sql.DB) *ReplyStore { return &ReplyStore{db: db} }

func (s *ReplyStore) GetEmailLogByCustomMessageID(ctx context.Context, customMessageID string) (*domain.EmailLog, error) {
	row := s.db.QueryRowContext(ctx, emailLogSelect+` WHERE custom_message_id = $1`, customMessageID)
	return scanEmailLogOrNil(row)
}

func (s *ReplyStore) GetEmailLogByID(ctx context.Context, id int64) (*domain.EmailLog, error) {
	row := s.db.QueryRowContext(ctx, emailLogSelect+` WHERE id = $1`, id)
	return scanEmailLogOrNil(row)
}

func (s *ReplyStore) GetOwnerIDByInboundDomain(ctx context.Context, host string) (string, bool, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id FROM sender_domains
		WHERE lower(domain) = lower($1) AND inbound_parse_enabled = true
		LIMIT 1
	`, strings.ToLower(host)).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("owner by inbound domain %s: %w", host, err)
	}
	return ownerID, true, nil
}

func (s *ReplyStore) SaveReply(ctx context.Context, reply *domain.EmailReply) error {
	id := reply.ID
	if id == "" {
		id = uuid.New().String()
	}
	headers, err := json.Marshal(reply.RawHeaders)
	if err != nil {
		return fmt.Errorf("encode raw headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_replies
			(id, owner_id, email_log_id, account_id, from_email, from_name, to_email, subject,
			 body_text, body_html, in_reply_to, references_header, raw_headers, received_at,
			 sender_verified, expected_sender_email, verification_notes,
			 inbox_injected, inbox_injected_at, inbox_injection_provider, inbox_injection_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, id, reply.OwnerID, reply.EmailLogID, reply.AccountID, reply.FromEmail, reply.FromName, reply.ToEmail, reply.Subject,
		reply.BodyText, reply.BodyHTML, reply.InReplyTo, reply.ReferencesHeader, headers, reply.ReceivedAt,
		reply.SenderVerified, reply.ExpectedSenderEmail, reply.VerificationNotes,
		reply.InboxInjected, reply.InboxInjectedAt, reply.InboxInjectionProvider, reply.InboxInjectionError)
	if err != nil {
		return fmt.Errorf("save reply: %w", err)
	}
	reply.ID = id
	return nil
}

// UpdateInjectionOutcome persists the result of internal/inbox.Service.Deliver
// against the reply row it was run for. Called by cmd/server's
// deliverReplyToInbox (the Ingress.OnStored callback) after SaveReply, once
// the inbox-injection step completes.
func (s *ReplyStore) UpdateInjectionOutcome(ctx context.Context, replyID string, injected bool, provider domain.InjectionProvider, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_replies
		SET inbox_injected = $1, inbox_injected_at = CASE WHEN $1 THEN NOW() ELSE inbox_injected_at END,
		    inbox_injection_provider = $2, inbox_injection_error = $3
		WHERE id = $4
	`, injected, provider, errMsg, replyID)
	if err != nil {
		return fmt.Errorf("update injection outcome for reply %s: %w", replyID, err)
	}
	return nil
}
