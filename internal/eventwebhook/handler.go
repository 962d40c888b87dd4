package eventwebhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ignite/automail/internal/pkg/logger"
)

// Handler returns an http.HandlerFunc that decodes the provider's event
// batch and applies it through r. Per spec it ALWAYS returns 2xx — a
// malformed body or an internal failure is logged, never surfaced, to
// avoid provider retry storms.
func (r *Receiver) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Error("eventwebhook: read body", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		var events []Event
		if err := json.Unmarshal(body, &events); err != nil {
			logger.Error("eventwebhook: invalid JSON", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
		defer cancel()

		for _, err := range r.Process(ctx, events) {
			logger.Error("eventwebhook: apply event", "error", err)
		}
		w.WriteHeader(http.StatusOK)
	}
}
