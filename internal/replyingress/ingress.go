package replyingress

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/ignite/automail/internal/domain"
)

// Ingress correlates and stores one inbound reply.
type Ingress struct {
	store    Store
	onStored func(ctx context.Context, reply *domain.EmailReply)
}

// New builds an Ingress.
func New(store Store) *Ingress {
	return &Ingress{store: store}
}

// OnStored registers a callback run after a reply is successfully
// correlated and saved, e.g. to hand it off to inbox injection. Handler
// invokes it in a background goroutine so webhook latency never depends
// on mailbox-provider round-trips.
func (i *Ingress) OnStored(f func(ctx context.Context, reply *domain.EmailReply)) {
	i.onStored = f
}

// Process runs the correlation cascade, verifies the sender when a send is
// matched, and persists the reply. success is false when no owner could be
// resolved at all — the caller must still answer the webhook with HTTP 200.
func (i *Ingress) Process(ctx context.Context, msg InboundMessage) (reply *domain.EmailReply, success bool, err error) {
	corr, err := i.correlate(ctx, msg)
	if err != nil {
		return nil, false, fmt.Errorf("replyingress: correlate: %w", err)
	}
	if corr.ownerID == "" {
		return nil, false, nil
	}

	fromEmail, fromName := splitAddress(msg.From)

	reply = &domain.EmailReply{
		OwnerID:          corr.ownerID,
		FromEmail:        fromEmail,
		FromName:         fromName,
		ToEmail:          msg.To,
		Subject:          msg.Subject,
		BodyText:         msg.Text,
		BodyHTML:         msg.HTML,
		InReplyTo:        msg.InReplyTo,
		ReferencesHeader: msg.ReferencesHeader,
		RawHeaders:       msg.RawHeaders,
		ReceivedAt:       msg.ReceivedAt,
	}

	if corr.log != nil {
		logID := corr.log.ID
		reply.EmailLogID = &logID
		if corr.log.AccountID != "" {
			acct := corr.log.AccountID
			reply.AccountID = &acct
		}
		reply.ExpectedSenderEmail = corr.log.ToEmail
		reply.SenderVerified, reply.VerificationNotes = verifySender(fromEmail, corr.log.ToEmail)
	} else {
		reply.VerificationNotes = "correlation miss: matched by inbound domain only, no send on record"
	}

	if err := i.store.SaveReply(ctx, reply); err != nil {
		return nil, false, fmt.Errorf("replyingress: save reply: %w", err)
	}
	return reply, true, nil
}

// splitAddress parses "Name <email>" or a bare address, tolerating
// malformed input by falling back to the raw string as the email.
func splitAddress(raw string) (email, name string) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return raw, ""
	}
	return addr.Address, addr.Name
}
