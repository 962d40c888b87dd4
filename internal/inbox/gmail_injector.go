package inbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailInjector writes a message directly into the owner's Gmail inbox via
// users.messages.insert.
type GmailInjector struct{}

func (GmailInjector) Inject(ctx context.Context, accessToken, ownerEmail string, msg Message) (string, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	srv, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", fmt.Errorf("inbox: gmail service: %w", err)
	}

	raw := buildRFC822(msg.FromName, msg.FromEmail, msg.Subject, msg.BodyHTML, msg.ReceivedAt)
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	call := srv.Users.Messages.Insert("me", &gmail.Message{
		Raw:      encoded,
		LabelIds: []string{"INBOX", "UNREAD"},
	}).InternalDateSource("dateHeader")

	result, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("inbox: gmail insert: %w", err)
	}
	return result.Id, nil
}

// buildRFC822 assembles the minimal RFC-822 envelope Gmail's insert
// endpoint expects: reply-to mirrors from so a direct reply from the owner
// reaches the original contact.
func buildRFC822(fromName, fromEmail, subject, bodyHTML string, date time.Time) string {
	var b strings.Builder
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%q <%s>", fromName, fromEmail)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	b.WriteString("To: me\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Reply-To: %s\r\n", from)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(bodyHTML)
	return b.String()
}
