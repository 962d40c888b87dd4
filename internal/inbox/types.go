// Package inbox writes an inbound reply into the owner's mailbox via
// OAuth-authorized provider APIs, falling back to a forwarded courtesy
// email when injection is unavailable or fails.
package inbox

import (
	"context"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// Store is the data-access contract the injector depends on.
type Store interface {
	// GetActiveConnection returns the owner's active ProviderConnection, or
	// nil if none exists.
	GetActiveConnection(ctx context.Context, ownerID string) (*domain.ProviderConnection, error)
	UpdateConnection(ctx context.Context, conn *domain.ProviderConnection) error

	GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error)
	// GetVerifiedSenderDomain returns an owner's verified sending domain,
	// if any, for use in the fallback's From address.
	GetVerifiedSenderDomain(ctx context.Context, ownerID string) (string, bool, error)
}

// Message is the reply content to land in the owner's mailbox.
type Message struct {
	FromEmail  string
	FromName   string
	Subject    string
	BodyHTML   string
	ReceivedAt time.Time
}

// Injector writes a Message through one provider's mailbox-insert API.
type Injector interface {
	Inject(ctx context.Context, accessToken string, ownerEmail string, msg Message) (providerMessageID string, err error)
}

// ForwardMessage is the courtesy email sent when inbox injection is
// unavailable or fails.
type ForwardMessage struct {
	To, From, FromName, ReplyTo, Subject, HTML, Text string
}

// ForwardSender is the minimal outbound-send capability the service-forward
// fallback needs. A thin adapter over internal/dispatcher's ESPSender
// satisfies this at wiring time.
type ForwardSender interface {
	Send(ctx context.Context, msg ForwardMessage) error
}
