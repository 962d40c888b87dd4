package mimeutil

import (
	"testing"

	"github.com/ignite/automail/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSubstituteReplacesKnownFields(t *testing.T) {
	account := &domain.Account{FirstName: "Jane", LastName: "Doe", Name: "Doe Insurance", City: "Fresno"}
	email := &domain.ScheduledEmail{RecipientName: "Jane Doe", RecipientEmail: "jane@example.com"}

	got := Substitute("Hi {{first_name}}, your policy at {{company_name}} in {{City}} is ready.", email, account, "2025-06-01")
	assert.Equal(t, "Hi Jane, your policy at Doe Insurance in Fresno is ready.", got)
}

func TestSubstituteUnresolvedBecomesEmpty(t *testing.T) {
	got := Substitute("Token {{not_a_real_field}} here", &domain.ScheduledEmail{}, &domain.Account{}, "")
	assert.Equal(t, "Token  here", got)
}

func TestSubstituteIdempotent(t *testing.T) {
	account := &domain.Account{FirstName: "Jane"}
	email := &domain.ScheduledEmail{}
	once := Substitute("{{first_name}}", email, account, "")
	twice := Substitute(once, email, account, "")
	assert.Equal(t, once, twice)
}

func TestUnsubscribeLink(t *testing.T) {
	link := UnsubscribeLink("https://example.com/unsub", "se-1", "a+b@example.com")
	assert.Contains(t, link, "id=se-1")
	assert.Contains(t, link, "email=a%2Bb%40example.com")
}

func TestParseHeadersUnfoldsAndLowercases(t *testing.T) {
	raw := "Subject: Hello\n   continued\nIn-Reply-To:  <abc@x>\nSubject: Final"
	headers := ParseHeaders(raw)
	assert.Equal(t, "Final", headers["subject"])
	assert.Equal(t, "<abc@x>", headers["in-reply-to"])
}

func TestParseHeadersFoldsContinuation(t *testing.T) {
	raw := "Subject: Hello\n world"
	headers := ParseHeaders(raw)
	assert.Equal(t, "Hello world", headers["subject"])
}
