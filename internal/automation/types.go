// Package automation implements the scheduler/refresher (§4.5): it walks
// each active automation's workflow graph and emits ScheduledEmail rows for
// qualifying accounts.
package automation

import (
	"context"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// Store is the data-access contract the scheduler depends on. It never
// imports net/http; concrete implementations live in internal/repository/postgres.
type Store interface {
	ListActiveAutomations(ctx context.Context) ([]domain.Automation, error)
	GetAutomation(ctx context.Context, id string) (*domain.Automation, error)

	// ExistingDedupKeys returns the dedup keys of Pending/Processing rows
	// for the given automation.
	ExistingDedupKeys(ctx context.Context, automationID string) (map[domain.DedupKey]bool, error)

	// CandidateAccounts returns non-opted-out accounts for ownerID, or for
	// every owner when ownerID is empty (system-default automations).
	CandidateAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)

	// ActivePolicies returns active policies for the given accounts, keyed
	// by account id.
	ActivePolicies(ctx context.Context, accountIDs []string) (map[string][]domain.Policy, error)

	// ResolveTemplateKey maps a (ownerID, defaultKey) pair to a concrete
	// EmailTemplate. ownerID may be empty for a system-default automation;
	// implementations should fall back to a global default in that case.
	ResolveTemplateKey(ctx context.Context, ownerID, defaultKey string) (*domain.EmailTemplate, error)
	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)

	// InsertScheduledEmails batch-inserts rows, tolerating unique-violation
	// races on the dedup key (treated as already-scheduled, not an error).
	InsertScheduledEmails(ctx context.Context, rows []domain.ScheduledEmail) error

	// RecordAutomationError records a non-fatal per-automation error so one
	// bad automation never aborts the whole refresh run.
	RecordAutomationError(ctx context.Context, automationID, message string) error
}

// scheduledNode is one planned send, relative to the account's
// qualification instant.
type scheduledNode struct {
	NodeID     string
	TemplateID string
	DaysOffset float64
}

// clock exists so tests can pin "now" without depending on wall time.
type clock func() time.Time
