package eventwebhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/pkg/logger"
)

// Store is the data-access contract the receiver depends on.
type Store interface {
	// GetByMessageID looks up an EmailLog by exact provider message id.
	GetByMessageID(ctx context.Context, messageID string) (*domain.EmailLog, error)
	// GetByMessageIDPrefix falls back to a prefix match when the exact
	// lookup misses (the provider may suffix sg_message_id with a filter id).
	GetByMessageIDPrefix(ctx context.Context, prefix string) (*domain.EmailLog, error)

	SaveEmailLog(ctx context.Context, log *domain.EmailLog) error
	AppendEmailEvent(ctx context.Context, ev domain.EmailEvent) error

	// MarkUnsubscribed flips opted_out on every account matching email
	// under ownerID and records the unsubscribe, idempotently.
	MarkUnsubscribed(ctx context.Context, ownerID, email string) error
}

// Receiver applies one webhook batch.
type Receiver struct {
	store      Store
	suppressor Suppressor
}

// New builds a Receiver.
func New(store Store, suppressor Suppressor) *Receiver {
	return &Receiver{store: store, suppressor: suppressor}
}

// Process applies every event in the batch. A single event's failure is
// logged and never aborts the batch — webhook delivery always reports success
// to the provider regardless of what Process returns.
func (r *Receiver) Process(ctx context.Context, events []Event) []error {
	var errs []error
	for _, ev := range events {
		if err := r.applyOne(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("eventwebhook: %s for %s: %w", ev.Event, ev.SGMessageID, err))
		}
	}
	return errs
}

func (r *Receiver) applyOne(ctx context.Context, ev Event) error {
	messageID := stripFilterSuffix(ev.SGMessageID)
	if messageID == "" {
		return fmt.Errorf("missing sg_message_id")
	}

	log, err := r.store.GetByMessageID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("lookup by message id: %w", err)
	}
	if log == nil {
		log, err = r.store.GetByMessageIDPrefix(ctx, messageID)
		if err != nil {
			return fmt.Errorf("lookup by message id prefix: %w", err)
		}
	}
	if log == nil {
		logger.Warn("eventwebhook: no EmailLog match", "sg_message_id", ev.SGMessageID, "event", ev.Event)
		return nil
	}

	occurred := time.Unix(ev.Timestamp, 0).UTC()

	if domain.IsTerminal(log.Status) && ev.Event != "deferred" && ev.Event != "processed" {
		return nil // terminal states are absorbing; never regress or re-mutate
	}

	switch ev.Event {
	case "delivered":
		if !domain.AdvancesTo(log.Status, domain.LogDelivered) {
			return nil
		}
		log.Status = domain.LogDelivered
		log.DeliveredAt = &occurred

	case "open":
		log.OpenCount++
		if log.FirstOpenedAt == nil {
			log.FirstOpenedAt = &occurred
		}
		if log.Status == domain.LogSent || log.Status == domain.LogDelivered {
			log.Status = domain.LogOpened
		}

	case "click":
		log.ClickCount++
		if log.FirstClickedAt == nil {
			log.FirstClickedAt = &occurred
		}
		if domain.AdvancesTo(log.Status, domain.LogClicked) {
			log.Status = domain.LogClicked
		}
		if err := r.store.AppendEmailEvent(ctx, domain.EmailEvent{
			EmailLogID: log.ID, URL: ev.URL, IPAddress: ev.IP, UserAgent: ev.UserAgent, OccurredAt: occurred,
		}); err != nil {
			return fmt.Errorf("append click event: %w", err)
		}

	case "bounce":
		log.Status = domain.LogBounced
		log.BouncedAt = &occurred
		log.BounceType = ev.Type
		log.ErrorMessage = ev.Reason
		if ev.Type == "bounce" {
			if err := r.suppressor.Suppress(ctx, log.ToEmail, "hard bounce"); err != nil {
				return fmt.Errorf("suppress on hard bounce: %w", err)
			}
		}

	case "dropped":
		log.Status = domain.LogDropped
		log.ErrorMessage = ev.Reason

	case "spamreport":
		log.Status = domain.LogSpamReport
		if err := r.suppressor.Suppress(ctx, log.ToEmail, "spam report"); err != nil {
			return fmt.Errorf("suppress on spam report: %w", err)
		}

	case "unsubscribe", "group_unsubscribe":
		log.Status = domain.LogUnsubscribed
		log.UnsubscribedAt = &occurred
		if err := r.store.MarkUnsubscribed(ctx, log.OwnerID, log.ToEmail); err != nil {
			return fmt.Errorf("mark unsubscribed: %w", err)
		}

	case "deferred", "processed":
		return nil // log-only, never mutates status

	default:
		logger.Warn("eventwebhook: unrecognized event type", "event", ev.Event)
		return nil
	}

	return r.store.SaveEmailLog(ctx, log)
}

// stripFilterSuffix removes SendGrid's trailing ".{filter_id}" suffix from
// sg_message_id, keeping only the portion before the first dot.
func stripFilterSuffix(id string) string {
	if idx := strings.Index(id, "."); idx >= 0 {
		return id[:idx]
	}
	return id
}
