package replyingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignite/automail/internal/mimeutil"
	"github.com/ignite/automail/internal/pkg/logger"
)

const maxInboundBody = 25 << 20 // 25 MiB, generous for attachments

// Handler returns an http.HandlerFunc that parses the inbound-parse
// multipart form and runs it through Process. Always answers HTTP 200 so
// the provider never retries.
func (i *Ingress) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok := parseInboundForm(r)
		if !ok {
			writeResult(w, false)
			return
		}

		reply, success, err := i.Process(r.Context(), msg)
		if err != nil {
			logger.Error("replyingress: process", "error", err)
			writeResult(w, false)
			return
		}
		if !success {
			logger.Warn("replyingress: no owner resolved for inbound reply", "to", msg.To)
			writeResult(w, false)
			return
		}
		logger.Info("replyingress: stored reply", "owner_id", reply.OwnerID, "sender_verified", reply.SenderVerified)
		if i.onStored != nil {
			go i.onStored(context.Background(), reply)
		}
		writeResult(w, true)
	}
}

func parseInboundForm(r *http.Request) (InboundMessage, bool) {
	if err := r.ParseMultipartForm(maxInboundBody); err != nil {
		logger.Error("replyingress: parse multipart form", "error", err)
		return InboundMessage{}, false
	}

	form := r.MultipartForm.Value
	get := func(key string) string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	headers := mimeutil.ParseHeaders(get("headers"))
	inReplyTo := get("In-Reply-To")
	if inReplyTo == "" {
		inReplyTo = headers["in-reply-to"]
	}
	references := get("References")
	if references == "" {
		references = headers["references"]
	}

	body, ok := mimeutil.FromFormFields(get("text"), get("html"))
	if !ok {
		if raw := get("email"); raw != "" {
			if parsed, err := mimeutil.FromRawMIME([]byte(raw)); err == nil {
				body = parsed
			}
		}
	}

	return InboundMessage{
		To:               get("to"),
		From:             get("from"),
		Subject:          get("subject"),
		Text:             body.Text,
		HTML:             body.HTML,
		InReplyTo:        inReplyTo,
		ReferencesHeader: references,
		RawHeaders:       headers,
		ReceivedAt:       time.Now().UTC(),
	}, true
}

func writeResult(w http.ResponseWriter, success bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": success})
}
