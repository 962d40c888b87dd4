package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/automail/internal/pkg/httpretry"
	"github.com/ignite/automail/internal/pkg/logger"
)

// SendGridSender delivers mail through the SendGrid v3 Mail Send API.
type SendGridSender struct {
	apiKey  string
	baseURL string
	client  httpretry.HTTPDoer
}

// NewSendGridSender builds a SendGridSender. client defaults to a retrying
// 30s-timeout http.Client when nil.
func NewSendGridSender(apiKey string, client httpretry.HTTPDoer) *SendGridSender {
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3)
	}
	return &SendGridSender{apiKey: apiKey, baseURL: "https://api.sendgrid.com/v3", client: client}
}

func (s *SendGridSender) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if s.apiKey == "" {
		return SendResult{}, fmt.Errorf("sendgrid: API key not configured")
	}

	to := map[string]string{"email": msg.To}
	if msg.ToName != "" {
		to["name"] = msg.ToName
	}
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{to}, "custom_args": msg.CustomArgs},
		},
		"from":      map[string]string{"email": msg.From, "name": msg.FromName},
		"reply_to":  map[string]string{"email": msg.ReplyTo},
		"subject":   msg.Subject,
		"headers":   map[string]string{"Message-ID": msg.MessageID},
		"content": []map[string]string{
			{"type": "text/plain", "value": msg.Text},
			{"type": "text/html", "value": msg.HTML},
		},
		"tracking_settings": map[string]interface{}{
			"click_tracking": map[string]bool{"enable": true},
			"open_tracking":  map[string]bool{"enable": true},
		},
	}
	if len(msg.Categories) > 0 {
		payload["categories"] = msg.Categories
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("sendgrid: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("sendgrid: build request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("sendgrid: provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}
	logger.Info("sendgrid: sent", "to", logger.RedactEmail(msg.To), "provider_message_id", messageID)
	return SendResult{ProviderMessageID: messageID}, nil
}
