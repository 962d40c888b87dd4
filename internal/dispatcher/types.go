// Package dispatcher sends due ScheduledEmail rows through the outbound
// mail provider, creating and advancing the corresponding EmailLog.
package dispatcher

import (
	"context"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// Store is the data-access contract the dispatcher depends on.
type Store interface {
	// ListDue returns Pending rows with scheduled_for <= now and
	// requires_verification != true, oldest-first, up to limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledEmail, error)

	// Reserve conditionally moves a row from Pending to Processing,
	// incrementing attempts and stamping last_attempt_at. Returns the
	// updated row, or ok=false if another dispatcher already claimed it.
	Reserve(ctx context.Context, id string, now time.Time) (row domain.ScheduledEmail, ok bool, err error)

	RecentSuccessfulSend(ctx context.Context, recipientEmail, templateID string, since time.Time) (bool, error)
	CancelScheduled(ctx context.Context, id string, reason string) error

	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)

	CreateEmailLog(ctx context.Context, log *domain.EmailLog) (int64, error)
	MarkEmailLogSent(ctx context.Context, id int64, providerMessageID, customMessageID string, sentAt time.Time) error
	MarkEmailLogFailed(ctx context.Context, id int64, errMsg string) error

	MarkScheduledSent(ctx context.Context, id string, emailLogID int64) error
	// MarkScheduledFailed either returns the row to Pending (retry) or
	// fails it terminally, depending on whether attempts < max_attempts.
	MarkScheduledFailed(ctx context.Context, id string, retry bool, errMsg string) error
}

// OutboundMessage is the provider-neutral payload the dispatcher builds.
type OutboundMessage struct {
	To, ToName           string
	From, FromName       string
	ReplyTo              string
	Subject              string
	HTML, Text           string
	MessageID            string
	Categories           []string
	CustomArgs           map[string]string
}

// SendResult is what a successful ESPSender.Send call returns.
type SendResult struct {
	ProviderMessageID string
}

// ESPSender delivers one OutboundMessage through the configured provider.
type ESPSender interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}
