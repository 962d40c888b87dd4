package replyingress

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/ignite/automail/internal/domain"
)

// plusAddressRe matches the envelope-recipient convention reply-{log_id}@...
var plusAddressRe = regexp.MustCompile(`(?i)reply-(\d+)@`)

// embeddedLogIDRe pulls the log id out of our own custom Message-ID format
// when it shows up verbatim in In-Reply-To (e.g. a relay rewrote the header
// but kept the value).
var embeddedLogIDRe = regexp.MustCompile(`<isg-(\d+)-\d+@`)

// correlation is the result of resolving an inbound reply to a send.
type correlation struct {
	log     *domain.EmailLog // nil when only an owner was resolved (domain fallback), or nothing at all
	ownerID string
}

// correlate runs the four-strategy cascade in order, stopping at the first
// hit. Returns a zero correlation (ownerID == "") when nothing resolves.
func (i *Ingress) correlate(ctx context.Context, msg InboundMessage) (correlation, error) {
	if m := plusAddressRe.FindStringSubmatch(msg.To); len(m) == 2 {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			if log, err := i.store.GetEmailLogByID(ctx, id); err != nil {
				return correlation{}, err
			} else if log != nil {
				return correlation{log: log, ownerID: log.OwnerID}, nil
			}
		}
	}

	if msg.InReplyTo != "" {
		if log, err := i.store.GetEmailLogByCustomMessageID(ctx, msg.InReplyTo); err != nil {
			return correlation{}, err
		} else if log != nil {
			return correlation{log: log, ownerID: log.OwnerID}, nil
		}
	}

	if m := embeddedLogIDRe.FindStringSubmatch(msg.InReplyTo); len(m) == 2 {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			if log, err := i.store.GetEmailLogByID(ctx, id); err != nil {
				return correlation{}, err
			} else if log != nil {
				return correlation{log: log, ownerID: log.OwnerID}, nil
			}
		}
	}

	if host := addressHost(msg.To); host != "" {
		ownerID, ok, err := i.store.GetOwnerIDByInboundDomain(ctx, host)
		if err != nil {
			return correlation{}, err
		}
		if ok {
			return correlation{ownerID: ownerID}, nil
		}
	}

	return correlation{}, nil
}

// verifySender compares the reply's sender address to the original
// recipient on the log, returning (verified, notes) per the three
// recognized outcomes.
func verifySender(replyFrom, expected string) (bool, string) {
	replyFrom = strings.ToLower(strings.TrimSpace(replyFrom))
	expected = strings.ToLower(strings.TrimSpace(expected))
	if replyFrom == expected {
		return true, domain.VerificationExactMatch
	}
	if addressHost(replyFrom) != "" && addressHost(replyFrom) == addressHost(expected) {
		return false, domain.VerificationDomainOnly
	}
	return false, domain.VerificationNoMatch
}

// addressHost returns the lowercased domain part of an email address.
func addressHost(addr string) string {
	idx := strings.LastIndex(addr, "@")
	if idx < 0 || idx+1 >= len(addr) {
		return ""
	}
	return strings.ToLower(addr[idx+1:])
}
