package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/automail/internal/pkg/httpretry"
)

// MicrosoftInjector posts a message object into the owner's inbox folder
// via Microsoft Graph. Graph will not honor an external From address, so
// the true sender is surfaced in a banner prepended to the body instead,
// and Reply-To is set to the contact so a reply reaches them directly.
type MicrosoftInjector struct {
	client httpretry.HTTPDoer
}

func NewMicrosoftInjector(client httpretry.HTTPDoer) *MicrosoftInjector {
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3)
	}
	return &MicrosoftInjector{client: client}
}

func (m *MicrosoftInjector) Inject(ctx context.Context, accessToken, ownerEmail string, msg Message) (string, error) {
	banner := fmt.Sprintf(`<div style="border-left:3px solid #888;padding-left:8px;color:#555">Forwarded reply from %s &lt;%s&gt;</div>`, msg.FromName, msg.FromEmail)

	payload := map[string]interface{}{
		"subject": msg.Subject,
		"body": map[string]string{
			"contentType": "HTML",
			"content":     banner + msg.BodyHTML,
		},
		"toRecipients": []map[string]interface{}{
			{"emailAddress": map[string]string{"address": ownerEmail}},
		},
		"replyTo": []map[string]interface{}{
			{"emailAddress": map[string]string{"address": msg.FromEmail, "name": msg.FromName}},
		},
		"isRead":  false,
		"isDraft": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("inbox: marshal graph message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://graph.microsoft.com/v1.0/me/mailFolders/inbox/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("inbox: build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inbox: graph insert: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("inbox: graph returned %d: %s", resp.StatusCode, string(respBody))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("inbox: decode graph response: %w", err)
	}
	return created.ID, nil
}
