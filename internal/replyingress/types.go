// Package replyingress correlates an inbound reply to the outbound send
// that prompted it, verifies the sender, and stores the result.
package replyingress

import (
	"context"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// Store is the data-access contract the ingress depends on.
type Store interface {
	GetEmailLogByCustomMessageID(ctx context.Context, customMessageID string) (*domain.EmailLog, error)
	GetEmailLogByID(ctx context.Context, id int64) (*domain.EmailLog, error)
	// GetOwnerIDByInboundDomain looks up an owner whose SenderDomain has
	// inbound_parse_enabled=true and matches host, case-insensitive.
	GetOwnerIDByInboundDomain(ctx context.Context, host string) (string, bool, error)

	SaveReply(ctx context.Context, reply *domain.EmailReply) error
}

// InboundMessage is the provider-neutral shape the handler extracts from
// the inbound-parse webhook's multipart body (or a raw MIME fallback).
type InboundMessage struct {
	To               string
	From             string
	FromName         string
	Subject          string
	Text             string
	HTML             string
	InReplyTo        string
	ReferencesHeader string
	RawHeaders       map[string]string
	ReceivedAt       time.Time
}
