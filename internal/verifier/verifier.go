// Package verifier re-checks ScheduledEmail rows in the 24 hours before
// send, cancelling ones that no longer qualify.
package verifier

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// recencyWindow is how far back a prior successful send to the same
// recipient/template suppresses a re-send.
const recencyWindow = 7 * 24 * time.Hour

// batchSize bounds a single verification pass.
const batchSize = 100

// lookahead is how far into the future a row must fall to be verified now.
const lookahead = 24 * time.Hour

// Store is the data-access contract the verifier depends on.
type Store interface {
	// ListPendingVerification returns Pending rows with requires_verification
	// true and scheduled_for in (now, windowEnd], oldest-first, up to limit.
	ListPendingVerification(ctx context.Context, now, windowEnd time.Time, limit int) ([]domain.ScheduledEmail, error)

	GetAutomation(ctx context.Context, id string) (*domain.Automation, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)

	// IsUnsubscribed checks the owner-scoped unsubscribe list.
	IsUnsubscribed(ctx context.Context, ownerID, email string) (bool, error)

	// PolicyQualifies reports whether an Active policy still carries
	// qualificationValue on the date field matching trigger.
	PolicyQualifies(ctx context.Context, accountID string, trigger domain.TriggerField, qualificationValue string) (bool, error)

	// RecentSuccessfulSend reports whether templateID was sent to
	// recipientEmail at or after since.
	RecentSuccessfulSend(ctx context.Context, recipientEmail, templateID string, since time.Time) (bool, error)

	MarkVerified(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, reason string) error
}

// Verifier runs the periodic re-qualification pass.
type Verifier struct {
	store Store
	now   func() time.Time
}

// New builds a Verifier backed by store.
func New(store Store) *Verifier {
	return &Verifier{store: store, now: time.Now}
}

// Run re-checks one batch of due rows. Each row's outcome is independent;
// a single row's store error is recorded in the returned slice rather than
// aborting the batch.
func (v *Verifier) Run(ctx context.Context) ([]error, error) {
	now := v.now()
	rows, err := v.store.ListPendingVerification(ctx, now, now.Add(lookahead), batchSize)
	if err != nil {
		return nil, fmt.Errorf("verifier: list pending: %w", err)
	}

	var errs []error
	for _, row := range rows {
		if ctx.Err() != nil {
			return errs, ctx.Err()
		}
		ok, reason, err := v.recheck(ctx, row, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("verifier: recheck %s: %w", row.ID, err))
			continue
		}
		if ok {
			if err := v.store.MarkVerified(ctx, row.ID); err != nil {
				errs = append(errs, fmt.Errorf("verifier: mark verified %s: %w", row.ID, err))
			}
			continue
		}
		if err := v.store.Cancel(ctx, row.ID, reason); err != nil {
			errs = append(errs, fmt.Errorf("verifier: cancel %s: %w", row.ID, err))
		}
	}
	return errs, nil
}

// recheck re-evaluates every condition that justified scheduling row. It
// returns (true, "", nil) when the row still qualifies, or (false, reason,
// nil) when it should be cancelled.
func (v *Verifier) recheck(ctx context.Context, row domain.ScheduledEmail, now time.Time) (bool, string, error) {
	automation, err := v.store.GetAutomation(ctx, row.AutomationID)
	if err != nil {
		return false, "", err
	}
	if automation == nil || automation.Status != domain.AutomationActive {
		return false, "automation is no longer active", nil
	}

	account, err := v.store.GetAccount(ctx, row.AccountID)
	if err != nil {
		return false, "", err
	}
	if account == nil {
		return false, "account no longer exists", nil
	}
	if account.OptedOut {
		return false, "account has opted out", nil
	}

	if _, err := mail.ParseAddress(row.RecipientEmail); err != nil {
		return false, "recipient email is no longer valid", nil
	}

	unsubscribed, err := v.store.IsUnsubscribed(ctx, row.OwnerID, row.RecipientEmail)
	if err != nil {
		return false, "", err
	}
	if unsubscribed {
		return false, "recipient has unsubscribed", nil
	}

	if row.TriggerField == domain.TriggerPolicyExpiration || row.TriggerField == domain.TriggerPolicyEffective {
		qualifies, err := v.store.PolicyQualifies(ctx, row.AccountID, row.TriggerField, row.QualificationValue)
		if err != nil {
			return false, "", err
		}
		if !qualifies {
			return false, "qualifying policy no longer exists", nil
		}
	}

	recent, err := v.store.RecentSuccessfulSend(ctx, row.RecipientEmail, row.TemplateID, now.Add(-recencyWindow))
	if err != nil {
		return false, "", err
	}
	if recent {
		return false, "same template already sent to this recipient in the last 7 days", nil
	}

	return true, "", nil
}
