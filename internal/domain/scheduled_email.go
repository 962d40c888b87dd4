package domain

import "time"

// ScheduledEmailStatus enumerates the ScheduledEmail lifecycle.
type ScheduledEmailStatus string

const (
	ScheduledPending    ScheduledEmailStatus = "Pending"
	ScheduledProcessing ScheduledEmailStatus = "Processing"
	ScheduledSent       ScheduledEmailStatus = "Sent"
	ScheduledFailed     ScheduledEmailStatus = "Failed"
	ScheduledCancelled  ScheduledEmailStatus = "Cancelled"
)

// TriggerField records which anchor produced a ScheduledEmail row.
type TriggerField string

const (
	TriggerPolicyExpiration TriggerField = "policy_expiration"
	TriggerPolicyEffective  TriggerField = "policy_effective"
	TriggerAccountCreated   TriggerField = "account_created"
	TriggerActivation       TriggerField = "activation"
)

// DefaultMaxAttempts is the default retry ceiling for a ScheduledEmail.
const DefaultMaxAttempts = 3

// ScheduledEmail is a pending unit of work produced by the scheduler and
// consumed by the verifier and dispatcher.
//
// Dedup key: (AutomationID, AccountID, TemplateID, QualificationValue) must
// be unique per automation; the scheduler enforces this, and the datastore
// carries a unique index as a backstop (see DESIGN.md Open Question 2).
type ScheduledEmail struct {
	ID            string `json:"id" db:"id"`
	OwnerID       string `json:"owner_id" db:"owner_id"`
	AutomationID  string `json:"automation_id" db:"automation_id"`
	AccountID     string `json:"account_id" db:"account_id"`
	TemplateID    string `json:"template_id" db:"template_id"`
	NodeID        string `json:"node_id" db:"node_id"`

	RecipientEmail string `json:"recipient_email" db:"recipient_email"`
	RecipientName  string `json:"recipient_name" db:"recipient_name"`
	FromEmail      string `json:"from_email" db:"from_email"`
	FromName       string `json:"from_name" db:"from_name"`
	Subject        string `json:"subject" db:"subject"`

	ScheduledFor time.Time            `json:"scheduled_for" db:"scheduled_for"`
	Status       ScheduledEmailStatus `json:"status" db:"status"`

	RequiresVerification bool         `json:"requires_verification" db:"requires_verification"`
	QualificationValue   string       `json:"qualification_value" db:"qualification_value"`
	TriggerField         TriggerField `json:"trigger_field" db:"trigger_field"`

	Attempts      int        `json:"attempts" db:"attempts"`
	MaxAttempts   int        `json:"max_attempts" db:"max_attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at" db:"last_attempt_at"`
	ErrorMessage  string     `json:"error_message,omitempty" db:"error_message"`
	EmailLogID    *int64     `json:"email_log_id" db:"email_log_id"`
}

// DedupKey returns the triple that must be unique within an automation.
type DedupKey struct {
	AccountID          string
	TemplateID         string
	QualificationValue string
}

// Key returns this row's dedup key.
func (s *ScheduledEmail) Key() DedupKey {
	return DedupKey{AccountID: s.AccountID, TemplateID: s.TemplateID, QualificationValue: s.QualificationValue}
}

// CanRetry reports whether a failed send should return to Pending instead
// of terminally failing.
func (s *ScheduledEmail) CanRetry() bool {
	return s.Attempts < s.MaxAttempts
}
