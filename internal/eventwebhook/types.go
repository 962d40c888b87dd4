// Package eventwebhook applies delivery/engagement events pushed by the
// outbound mail provider to the corresponding EmailLog row.
package eventwebhook

import "context"

// Event is one entry in the provider's webhook batch.
type Event struct {
	Event       string `json:"event"`
	Timestamp   int64  `json:"timestamp"`
	SGMessageID string `json:"sg_message_id"`
	Type        string `json:"type,omitempty"`
	Reason      string `json:"reason,omitempty"`
	URL         string `json:"url,omitempty"`
	IP          string `json:"ip,omitempty"`
	UserAgent   string `json:"useragent,omitempty"`
}

// Suppressor records an address that must never be mailed again.
// internal/service/suppression.Service satisfies this.
type Suppressor interface {
	Suppress(ctx context.Context, email, reason string) error
}
