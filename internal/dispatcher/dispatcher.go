// Package dispatcher sends due ScheduledEmail rows through the outbound
// mail provider, creating and advancing the corresponding EmailLog.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/mimeutil"
)

// batchSize bounds a single dispatch invocation.
const batchSize = 50

// recencyWindow mirrors the verifier's: the same template may not be sent
// to the same recipient twice within this span.
const recencyWindow = 7 * 24 * time.Hour

// staleReservation is how long a row may sit in Processing before it is
// considered abandoned by a crashed worker and eligible for re-reservation.
const staleReservation = 10 * time.Minute

// Dispatcher sends one batch of due ScheduledEmail rows per Run call.
type Dispatcher struct {
	store           Store
	sender          ESPSender
	unsubscribeBase string
	now             func() time.Time
}

// New builds a Dispatcher. sender is typically a *SendGridSender, or
// NullSender{} for a dry run when no provider key is configured.
func New(store Store, sender ESPSender, unsubscribeBaseURL string) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, unsubscribeBase: unsubscribeBaseURL, now: time.Now}
}

// Run reserves and sends one batch of due rows. Each row's outcome is
// independent; a single row's failure is recorded and processing continues.
func (d *Dispatcher) Run(ctx context.Context) ([]error, error) {
	now := d.now()
	rows, err := d.store.ListDue(ctx, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: list due: %w", err)
	}

	var errs []error
	for _, row := range rows {
		if ctx.Err() != nil {
			return errs, ctx.Err()
		}
		if err := d.processOne(ctx, row, now); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: row %s: %w", row.ID, err))
		}
	}
	return errs, nil
}

func (d *Dispatcher) processOne(ctx context.Context, row domain.ScheduledEmail, now time.Time) error {
	reserved, ok, err := d.store.Reserve(ctx, row.ID, now)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if !ok {
		return nil // another dispatcher already claimed this row
	}
	row = reserved

	recent, err := d.store.RecentSuccessfulSend(ctx, row.RecipientEmail, row.TemplateID, now.Add(-recencyWindow))
	if err != nil {
		return fmt.Errorf("recency check: %w", err)
	}
	if recent {
		reason := "Template already sent to this recipient within 7 days"
		if err := d.store.CancelScheduled(ctx, row.ID, reason); err != nil {
			return fmt.Errorf("cancel on recency: %w", err)
		}
		return nil
	}

	account, err := d.store.GetAccount(ctx, row.AccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return d.fail(ctx, row, "account no longer exists")
	}
	template, err := d.store.GetTemplate(ctx, row.TemplateID)
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}
	if template == nil {
		return d.fail(ctx, row, "template no longer exists")
	}
	owner, err := d.store.GetOwner(ctx, row.OwnerID)
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}

	logID, err := d.store.CreateEmailLog(ctx, &domain.EmailLog{
		OwnerID:    row.OwnerID,
		AccountID:  row.AccountID,
		TemplateID: row.TemplateID,
		ToEmail:    row.RecipientEmail,
		ToName:     row.RecipientName,
		FromEmail:  row.FromEmail,
		FromName:   row.FromName,
		ReplyTo:    row.FromEmail,
		Subject:    row.Subject,
		Status:     domain.LogQueued,
		QueuedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	msg := d.buildMessage(row, account, template, owner, logID, now)

	result, err := d.sender.Send(ctx, msg)
	if err != nil {
		_ = d.store.MarkEmailLogFailed(ctx, logID, err.Error())
		retry := row.CanRetry()
		return d.failScheduled(ctx, row, retry, err.Error())
	}

	if err := d.store.MarkEmailLogSent(ctx, logID, result.ProviderMessageID, msg.MessageID, now); err != nil {
		return fmt.Errorf("mark email log sent: %w", err)
	}
	if err := d.store.MarkScheduledSent(ctx, row.ID, logID); err != nil {
		return fmt.Errorf("mark scheduled sent: %w", err)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, row domain.ScheduledEmail, reason string) error {
	return d.failScheduled(ctx, row, row.CanRetry(), reason)
}

func (d *Dispatcher) failScheduled(ctx context.Context, row domain.ScheduledEmail, retry bool, reason string) error {
	if err := d.store.MarkScheduledFailed(ctx, row.ID, retry, reason); err != nil {
		return fmt.Errorf("mark scheduled failed: %w", err)
	}
	return nil
}

// buildMessage renders the outbound payload: merge-substituted body, an
// assembled footer, and a custom Message-ID the reply ingress can later
// correlate against.
func (d *Dispatcher) buildMessage(row domain.ScheduledEmail, account *domain.Account, template *domain.EmailTemplate, owner *domain.Owner, logID int64, now time.Time) OutboundMessage {
	triggerDate := row.QualificationValue

	html := mimeutil.Substitute(template.HTMLContent, &row, account, triggerDate)
	text := mimeutil.Substitute(template.TextContent, &row, account, triggerDate)

	company := mimeutil.CompanyBlock{}
	if owner != nil {
		company = mimeutil.CompanyBlock{Name: owner.Name, Address: owner.Address, Phone: owner.Phone, Website: owner.Website}
	}
	footer := mimeutil.AssembleFooter("", company, d.unsubscribeBase, row.ID, row.RecipientEmail)
	html = html + "\n" + footer
	text = text + "\n" + footer

	domainPart := senderDomain(row.FromEmail)
	messageID := fmt.Sprintf("<isg-%d-%d@%s>", logID, now.UnixMilli(), domainPart)

	return OutboundMessage{
		To:         row.RecipientEmail,
		ToName:     row.RecipientName,
		From:       row.FromEmail,
		FromName:   row.FromName,
		ReplyTo:    row.FromEmail,
		Subject:    row.Subject,
		HTML:       html,
		Text:       text,
		MessageID:  messageID,
		Categories: []string{"automail"},
		CustomArgs: map[string]string{
			"scheduled_email_id": row.ID,
			"automation_id":      row.AutomationID,
			"account_id":         row.AccountID,
			"owner_id":           row.OwnerID,
			"email_log_id":       fmt.Sprintf("%d", logID),
		},
	}
}

// senderDomain returns the part of addr after "@", or "localhost" if addr
// carries none.
func senderDomain(addr string) string {
	if idx := strings.LastIndex(addr, "@"); idx >= 0 && idx+1 < len(addr) {
		return addr[idx+1:]
	}
	return "localhost"
}
