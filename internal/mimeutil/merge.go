// Package mimeutil provides merge-field substitution, footer assembly, and
// inbound MIME body/header extraction for the mailer.
package mimeutil

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
)

// Substitute replaces every recognized {{field}} token in content against
// the (ScheduledEmail, Account) pair. Matching is case-insensitive;
// unresolved fields become empty strings. Idempotent when resolved values
// contain no "{{" literal, since every token is a fixed, closed set.
func Substitute(content string, email *domain.ScheduledEmail, account *domain.Account, triggerDate string) string {
	now := time.Now().UTC()
	fields := map[string]string{
		"first_name":      account.FirstName,
		"last_name":       account.LastName,
		"full_name":       strings.TrimSpace(account.FirstName + " " + account.LastName),
		"name":            account.Name,
		"company_name":    account.Name,
		"email":           account.RecipientEmail(),
		"phone":           account.Phone,
		"address":         account.Address,
		"city":            account.City,
		"state":           account.State,
		"zip":             account.Zip,
		"postal_code":     account.Zip,
		"recipient_name":  email.RecipientName,
		"recipient_email": email.RecipientEmail,
		"today":           now.Format("2006-01-02"),
		"current_year":    strconv.Itoa(now.Year()),
		"trigger_date":    triggerDate,
	}
	return replaceTokens(content, fields)
}

func replaceTokens(content string, fields map[string]string) string {
	lower := strings.ToLower(content)
	var out strings.Builder
	i := 0
	for i < len(content) {
		start := strings.Index(lower[i:], "{{")
		if start < 0 {
			out.WriteString(content[i:])
			break
		}
		start += i
		end := strings.Index(lower[start:], "}}")
		if end < 0 {
			out.WriteString(content[i:])
			break
		}
		end += start
		token := strings.TrimSpace(lower[start+2 : end])
		out.WriteString(content[i:start])
		if val, ok := fields[token]; ok {
			out.WriteString(val)
		} // unresolved token -> empty string, matching spec's substitution rule
		i = end + 2
	}
	return out.String()
}

// CompanyBlock is the pipe-separated company identity line assembled into
// the footer.
type CompanyBlock struct {
	Name    string
	Address string
	Phone   string
	Website string
}

// AssembleFooter deterministically concatenates the optional signature,
// the company block, and the unsubscribe link.
func AssembleFooter(signatureHTML string, company CompanyBlock, unsubscribeBaseURL, scheduledEmailID, recipientEmail string) string {
	var b strings.Builder
	if signatureHTML != "" {
		b.WriteString(signatureHTML)
		b.WriteString("\n")
	}
	b.WriteString(company.Name)
	b.WriteString(" | ")
	b.WriteString(company.Address)
	b.WriteString(" | ")
	b.WriteString(company.Phone)
	b.WriteString(" | ")
	b.WriteString(company.Website)
	b.WriteString("\n")
	b.WriteString(UnsubscribeLink(unsubscribeBaseURL, scheduledEmailID, recipientEmail))
	return b.String()
}

// UnsubscribeLink builds {UNSUBSCRIBE_URL}?id={scheduled_email_id}&email={url-encoded}.
func UnsubscribeLink(baseURL, scheduledEmailID, recipientEmail string) string {
	v := url.Values{}
	v.Set("id", scheduledEmailID)
	v.Set("email", recipientEmail)
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + v.Encode()
}
