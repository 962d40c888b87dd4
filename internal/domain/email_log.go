package domain

import "time"

// EmailLogStatus enumerates a realized dispatch's lifecycle.
type EmailLogStatus string

const (
	LogQueued        EmailLogStatus = "Queued"
	LogSent          EmailLogStatus = "Sent"
	LogDelivered     EmailLogStatus = "Delivered"
	LogOpened        EmailLogStatus = "Opened"
	LogClicked       EmailLogStatus = "Clicked"
	LogBounced       EmailLogStatus = "Bounced"
	LogDropped       EmailLogStatus = "Dropped"
	LogSpamReport    EmailLogStatus = "SpamReport"
	LogUnsubscribed  EmailLogStatus = "Unsubscribed"
	LogFailed        EmailLogStatus = "Failed"
)

// statusRank orders the non-terminal progression Queued -> Sent ->
// Delivered -> Opened -> Clicked. Terminal states are absorbing and are not
// ranked here; callers must special-case them (see IsTerminal).
var statusRank = map[EmailLogStatus]int{
	LogQueued:    0,
	LogSent:      1,
	LogDelivered: 2,
	LogOpened:    3,
	LogClicked:   4,
}

// IsTerminal reports whether status is an absorbing end state that the
// event webhook must never regress out of.
func IsTerminal(s EmailLogStatus) bool {
	switch s {
	case LogBounced, LogDropped, LogSpamReport, LogUnsubscribed, LogFailed:
		return true
	}
	return false
}

// AdvancesTo reports whether moving from current to next is a legal
// monotonic transition along the Queued->Sent->Delivered->Opened->Clicked
// poset, or into any terminal state (always legal, terminal states absorb
// from anywhere non-terminal).
func AdvancesTo(current, next EmailLogStatus) bool {
	if IsTerminal(current) {
		return false
	}
	if IsTerminal(next) {
		return true
	}
	curRank, curOK := statusRank[current]
	nextRank, nextOK := statusRank[next]
	if !curOK || !nextOK {
		return false
	}
	return nextRank > curRank
}

// EmailLog is a realized dispatch attempt.
type EmailLog struct {
	ID      int64  `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	AccountID  string `json:"account_id" db:"account_id"`
	TemplateID string `json:"template_id" db:"template_id"`

	ToEmail   string `json:"to_email" db:"to_email"`
	ToName    string `json:"to_name" db:"to_name"`
	FromEmail string `json:"from_email" db:"from_email"`
	FromName  string `json:"from_name" db:"from_name"`
	Subject   string `json:"subject" db:"subject"`

	Status EmailLogStatus `json:"status" db:"status"`

	QueuedAt        time.Time  `json:"queued_at" db:"queued_at"`
	SentAt          *time.Time `json:"sent_at" db:"sent_at"`
	DeliveredAt     *time.Time `json:"delivered_at" db:"delivered_at"`
	FirstOpenedAt   *time.Time `json:"first_opened_at" db:"first_opened_at"`
	FirstClickedAt  *time.Time `json:"first_clicked_at" db:"first_clicked_at"`
	BouncedAt       *time.Time `json:"bounced_at" db:"bounced_at"`
	UnsubscribedAt  *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	FailedAt        *time.Time `json:"failed_at" db:"failed_at"`

	OpenCount  int `json:"open_count" db:"open_count"`
	ClickCount int `json:"click_count" db:"click_count"`

	MessageID       string `json:"message_id" db:"message_id"`
	CustomMessageID string `json:"custom_message_id" db:"custom_message_id"`
	ReplyTo         string `json:"reply_to" db:"reply_to"`

	BounceType   string `json:"bounce_type,omitempty" db:"bounce_type"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
}

// EmailEvent is an analytics-only row appended on click events, carrying
// the URL clicked and request metadata.
type EmailEvent struct {
	ID         string    `json:"id" db:"id"`
	EmailLogID int64     `json:"email_log_id" db:"email_log_id"`
	URL        string    `json:"url" db:"url"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}
