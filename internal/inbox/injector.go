package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/automail/internal/crypto"
	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/oauthclient"
	"github.com/ignite/automail/internal/pkg/logger"
)

// systemDefaultDomain is the From address used by the service-forward
// fallback when an owner has no verified sending domain of its own.
const systemDefaultDomain = "mail.automail.app"

// Outcome is what gets recorded on the originating EmailReply row.
type Outcome struct {
	Injected bool
	Provider domain.InjectionProvider
	Error    string
}

// Service runs the inbox-injection flow for one reply.
type Service struct {
	store     Store
	vault     *crypto.Vault
	registry  *oauthclient.Registry
	gmail     Injector
	microsoft Injector
	forward   ForwardSender
	now       func() time.Time
}

// New builds a Service.
func New(store Store, vault *crypto.Vault, registry *oauthclient.Registry, forward ForwardSender) *Service {
	return &Service{
		store: store, vault: vault, registry: registry,
		gmail: GmailInjector{}, microsoft: NewMicrosoftInjector(nil),
		forward: forward, now: time.Now,
	}
}

// Deliver attempts inbox injection for ownerID, falling back to a
// service-forwarded courtesy email on any failure along the way.
func (s *Service) Deliver(ctx context.Context, ownerID string, msg Message) Outcome {
	conn, err := s.store.GetActiveConnection(ctx, ownerID)
	if err != nil {
		logger.Error("inbox: get active connection", "error", err)
		return s.fallback(ctx, ownerID, msg, "lookup connection failed")
	}
	if conn == nil {
		return s.fallback(ctx, ownerID, msg, "no active provider connection")
	}

	accessToken, err := s.vault.Decrypt(conn.EncryptedAccess)
	if err != nil {
		logger.Error("inbox: decrypt access token", "error", err)
		return s.fallback(ctx, ownerID, msg, "token decrypt failed")
	}

	now := s.now()
	if conn.Expired(now) {
		accessToken, err = s.refresh(ctx, conn, now)
		if err != nil {
			logger.Error("inbox: refresh token", "error", err, "owner_id", ownerID)
			return s.fallback(ctx, ownerID, msg, "token refresh failed")
		}
	}

	owner, err := s.store.GetOwner(ctx, ownerID)
	if err != nil || owner == nil {
		return s.fallback(ctx, ownerID, msg, "owner not found")
	}

	injector, provider := s.injectorFor(conn.Provider)
	if _, err := injector.Inject(ctx, accessToken, owner.Email, msg); err != nil {
		logger.Error("inbox: injection failed", "error", err, "provider", provider)
		return s.fallback(ctx, ownerID, msg, err.Error())
	}

	now2 := s.now()
	conn.LastUsedAt = &now2
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		logger.Error("inbox: stamp last_used_at", "error", err)
	}

	return Outcome{Injected: true, Provider: provider}
}

func (s *Service) injectorFor(provider domain.ProviderType) (Injector, domain.InjectionProvider) {
	switch provider {
	case domain.ProviderGmail:
		return s.gmail, domain.InjectionGmail
	default:
		return s.microsoft, domain.InjectionMicrosoft
	}
}

// refresh exchanges the connection's refresh token for a new access token,
// persisting rotation and expiry. On failure it marks the connection
// expired with last_error before returning.
func (s *Service) refresh(ctx context.Context, conn *domain.ProviderConnection, now time.Time) (string, error) {
	adapter, ok := s.registry.For(conn.Provider)
	if !ok {
		return "", fmt.Errorf("inbox: no adapter registered for %s", conn.Provider)
	}
	refreshToken, err := s.vault.Decrypt(conn.EncryptedRefresh)
	if err != nil {
		return "", fmt.Errorf("inbox: decrypt refresh token: %w", err)
	}

	tokens, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		conn.Status = domain.ConnectionExpired
		conn.LastError = err.Error()
		_ = s.store.UpdateConnection(ctx, conn)
		return "", fmt.Errorf("inbox: refresh: %w", err)
	}

	encAccess, err := s.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return "", fmt.Errorf("inbox: encrypt refreshed access token: %w", err)
	}
	conn.EncryptedAccess = encAccess
	if tokens.RefreshToken != "" {
		encRefresh, err := s.vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("inbox: encrypt refreshed refresh token: %w", err)
		}
		conn.EncryptedRefresh = encRefresh
	}
	conn.TokenExpiresAt = now.Add(tokens.ExpiresIn)
	conn.Status = domain.ConnectionActive
	conn.LastError = ""
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return "", fmt.Errorf("inbox: persist refreshed connection: %w", err)
	}
	return tokens.AccessToken, nil
}

// fallback synthesizes a courtesy forward from replies@{owner's verified
// domain, else the system default} to the owner's registered email.
func (s *Service) fallback(ctx context.Context, ownerID string, msg Message, reason string) Outcome {
	owner, err := s.store.GetOwner(ctx, ownerID)
	if err != nil || owner == nil {
		return Outcome{Injected: false, Error: fmt.Sprintf("%s; owner lookup also failed", reason)}
	}

	fromDomain := systemDefaultDomain
	if d, ok, err := s.store.GetVerifiedSenderDomain(ctx, ownerID); err == nil && ok && d != "" {
		fromDomain = d
	}

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	banner := fmt.Sprintf(`<p><em>Forwarded reply from %s &lt;%s&gt;</em></p>`, msg.FromName, msg.FromEmail)

	err = s.forward.Send(ctx, ForwardMessage{
		To:       owner.Email,
		From:     "replies@" + fromDomain,
		FromName: owner.Name,
		ReplyTo:  msg.FromEmail,
		Subject:  subject,
		HTML:     banner + msg.BodyHTML,
		Text:     fmt.Sprintf("Forwarded reply from %s <%s>\n\n%s", msg.FromName, msg.FromEmail, msg.BodyHTML),
	})
	if err != nil {
		logger.Error("inbox: service-forward fallback failed", "error", err)
		return Outcome{Injected: false, Provider: domain.InjectionSendGridFallback, Error: fmt.Sprintf("%s; forward also failed: %v", reason, err)}
	}
	return Outcome{Injected: true, Provider: domain.InjectionSendGridFallback}
}
