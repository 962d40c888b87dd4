package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/automail/internal/pkg/logger"
)

// NullSender stands in for the outbound provider when no API key is
// configured. Every step up through payload construction still runs; the
// send itself is logged and a synthetic provider message id is returned,
// so a non-production deployment can exercise the full state machine.
type NullSender struct{}

func (NullSender) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	id := fmt.Sprintf("dry-run-%s", uuid.New().String())
	logger.Info("dispatcher: dry-run send", "to", logger.RedactEmail(msg.To), "subject", msg.Subject, "synthetic_message_id", id, "at", time.Now().UTC())
	return SendResult{ProviderMessageID: id}, nil
}
