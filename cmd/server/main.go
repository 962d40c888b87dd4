package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/ignite/automail/internal/action"
	"github.com/ignite/automail/internal/automation"
	"github.com/ignite/automail/internal/config"
	"github.com/ignite/automail/internal/crypto"
	"github.com/ignite/automail/internal/dispatcher"
	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/eventwebhook"
	"github.com/ignite/automail/internal/inbox"
	"github.com/ignite/automail/internal/oauthclient"
	"github.com/ignite/automail/internal/pkg/httpretry"
	"github.com/ignite/automail/internal/pkg/httputil"
	"github.com/ignite/automail/internal/pkg/logger"
	"github.com/ignite/automail/internal/replyingress"
	"github.com/ignite/automail/internal/repository/postgres"
	"github.com/ignite/automail/internal/service/suppression"
	"github.com/ignite/automail/internal/verifier"
)

var gmailScopes = []string{"https://www.googleapis.com/auth/gmail.insert", "https://www.googleapis.com/auth/userinfo.email"}
var microsoftScopes = []string{"offline_access", "Mail.ReadWrite", "User.Read"}

// checkPortAvailable verifies the target port is not already in use, so a
// stale process occupying it fails fast instead of the new one silently
// never accepting traffic.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  automail server (cmd/server)                                 ║")
	log.Println("║  automation scheduling, send dispatch, webhooks, inbox relay  ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("pre-flight check failed: %v", err)
	}
	log.Printf("pre-flight check passed: port %d is available", port)

	if cfg.Crypto.TokenEncryptionKey == "" {
		log.Fatal("TOKEN_ENCRYPTION_KEY is required")
	}
	vault, err := crypto.NewVault(cfg.Crypto.TokenEncryptionKey)
	if err != nil {
		log.Fatalf("init token vault: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("database url is required (SUPABASE_URL / DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	log.Println("database connected")

	// OAuth adapters. Callback URIs are path-based per oauthclient.RedirectURI.
	baseURL := cfg.Auth.FrontendURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}
	apiBase := baseURL + "/oauth"

	var googleAdapter *oauthclient.GoogleAdapter
	if cfg.Auth.GoogleClientID != "" {
		googleAdapter = oauthclient.NewGoogleAdapter(
			cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret,
			oauthclient.RedirectURI(apiBase, domain.ProviderGmail), gmailScopes,
		)
	}
	var microsoftAdapter *oauthclient.MicrosoftAdapter
	if cfg.Auth.MicrosoftClientID != "" {
		microsoftAdapter = oauthclient.NewMicrosoftAdapter(
			cfg.Auth.MicrosoftClientID, cfg.Auth.MicrosoftClientSecret,
			oauthclient.RedirectURI(apiBase, domain.ProviderMicrosoft), cfg.Auth.MicrosoftTenantID, microsoftScopes,
		)
	}
	var googleForRegistry, microsoftForRegistry oauthclient.Adapter
	if googleAdapter != nil {
		googleForRegistry = googleAdapter
	}
	if microsoftAdapter != nil {
		microsoftForRegistry = microsoftAdapter
	}
	registry := oauthclient.NewRegistry(googleForRegistry, microsoftForRegistry)

	// Repository layer.
	automationStore := postgres.NewAutomationStore(db)
	verifierStore := postgres.NewVerifierStore(db)
	dispatcherStore := postgres.NewDispatcherStore(db)
	eventStore := postgres.NewEventStore(db)
	replyStore := postgres.NewReplyStore(db)
	inboxStore := postgres.NewInboxStore(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)

	suppressionSvc := suppression.NewService(suppressionRepo)

	// Outbound sender: SendGrid when configured, a logging no-op otherwise
	// so the pipeline still runs end-to-end in local/dev.
	var sender dispatcher.ESPSender
	if cfg.SendGrid.APIKey != "" {
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.SendGrid.Timeout()}, 3)
		sender = dispatcher.NewSendGridSender(cfg.SendGrid.APIKey, client)
		log.Println("outbound sender: SendGrid")
	} else {
		sender = dispatcher.NullSender{}
		log.Println("outbound sender: NullSender (SENDGRID_API_KEY not set, dry run)")
	}

	scheduler := automation.NewScheduler(automationStore)
	verifierSvc := verifier.New(verifierStore)
	dispatcherSvc := dispatcher.New(dispatcherStore, sender, cfg.Unsubscribe.BaseURL)
	runner := action.New(scheduler, verifierSvc, dispatcherSvc)

	eventReceiver := eventwebhook.New(eventStore, suppressionSvc)
	replyIngress := replyingress.New(replyStore)
	inboxSvc := inbox.New(inboxStore, vault, registry, forwardAdapter{sender})
	replyIngress.OnStored(deliverReplyToInbox(inboxSvc, replyStore))

	router := newRouter(cfg, vault, registry, googleAdapter, microsoftAdapter, inboxStore,
		eventStore, eventReceiver, replyIngress, runner, db)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	log.Println("server ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("server stopped")
}

func newRouter(
	cfg *config.Config,
	vault *crypto.Vault,
	registry *oauthclient.Registry,
	googleAdapter *oauthclient.GoogleAdapter,
	microsoftAdapter *oauthclient.MicrosoftAdapter,
	inboxStore *postgres.InboxStore,
	eventStore *postgres.EventStore,
	eventReceiver *eventwebhook.Receiver,
	replyIngress *replyingress.Ingress,
	runner *action.Runner,
	db *sql.DB,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Auth.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/oauth", func(r chi.Router) {
		if googleAdapter != nil {
			r.Get("/gmail/start", oauthStartHandler(googleAdapter, domain.ProviderGmail))
			r.Get("/gmail/callback", oauthCallbackHandler(googleAdapter, domain.ProviderGmail, inboxStore, vault, cfg))
		}
		if microsoftAdapter != nil {
			r.Get("/microsoft/start", oauthStartHandler(microsoftAdapter, domain.ProviderMicrosoft))
			r.Get("/microsoft/callback", oauthCallbackHandler(microsoftAdapter, domain.ProviderMicrosoft, inboxStore, vault, cfg))
		}
	})

	r.Post("/webhooks/events", eventReceiver.Handler())
	r.Post("/webhooks/inbound", replyIngress.Handler())

	r.Get("/unsubscribe", unsubscribeHandler(eventStore))

	r.Route("/actions", func(r chi.Router) {
		r.Post("/", actionHandler(runner))
	})

	return r
}

// authCodeStarter is the subset of a concrete adapter needed to build the
// consent-screen redirect; the provider-neutral Adapter interface doesn't
// carry AuthCodeURL since only the initiate leg needs it.
type authCodeStarter interface {
	AuthCodeURL(state string) string
}

func oauthStartHandler(adapter authCodeStarter, provider domain.ProviderType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			httputil.BadRequest(w, "owner_id is required")
			return
		}
		state, err := oauthclient.EncodeState(oauthclient.State{
			OwnerID:       ownerID,
			RedirectAfter: r.URL.Query().Get("redirect_after"),
		})
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		http.Redirect(w, r, adapter.AuthCodeURL(state), http.StatusFound)
	}
}

func oauthCallbackHandler(
	adapter oauthclient.Adapter,
	provider domain.ProviderType,
	inboxStore *postgres.InboxStore,
	vault *crypto.Vault,
	cfg *config.Config,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			httputil.BadRequest(w, "missing code")
			return
		}
		state, err := oauthclient.DecodeState(r.URL.Query().Get("state"))
		if err != nil {
			httputil.BadRequest(w, "invalid state")
			return
		}

		ctx := r.Context()
		tokens, err := adapter.Exchange(ctx, code)
		if err != nil {
			logger.Error("oauth callback: exchange", "error", err, "provider", provider)
			httputil.InternalError(w, err)
			return
		}
		info, err := adapter.UserInfo(ctx, tokens.AccessToken)
		if err != nil {
			logger.Error("oauth callback: userinfo", "error", err, "provider", provider)
			httputil.InternalError(w, err)
			return
		}

		encAccess, err := vault.Encrypt(tokens.AccessToken)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		encRefresh, err := vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}

		conn := &domain.ProviderConnection{
			OwnerID:          state.OwnerID,
			Provider:         provider,
			EncryptedAccess:  encAccess,
			EncryptedRefresh: encRefresh,
			TokenExpiresAt:   time.Now().Add(tokens.ExpiresIn),
			ProviderEmail:    info.Email,
			Status:           domain.ConnectionActive,
		}
		if err := inboxStore.UpsertConnection(ctx, conn); err != nil {
			logger.Error("oauth callback: persist connection", "error", err)
			httputil.InternalError(w, err)
			return
		}

		redirectTo := state.RedirectAfter
		if redirectTo == "" {
			redirectTo = cfg.Auth.FrontendURL
		}
		http.Redirect(w, r, redirectTo, http.StatusFound)
	}
}

// deliverReplyToInbox hands a stored reply off to inbox injection (or its
// forward fallback) and records the outcome back on the reply row.
func deliverReplyToInbox(inboxSvc *inbox.Service, replyStore *postgres.ReplyStore) func(context.Context, *domain.EmailReply) {
	return func(ctx context.Context, reply *domain.EmailReply) {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		outcome := inboxSvc.Deliver(ctx, reply.OwnerID, inbox.Message{
			FromEmail:  reply.FromEmail,
			FromName:   reply.FromName,
			Subject:    reply.Subject,
			BodyHTML:   reply.BodyHTML,
			ReceivedAt: reply.ReceivedAt,
		})
		if err := replyStore.UpdateInjectionOutcome(ctx, reply.ID, outcome.Injected, outcome.Provider, outcome.Error); err != nil {
			logger.Error("replyingress: persist injection outcome", "error", err, "reply_id", reply.ID)
		}
	}
}

// unsubscribeHandler processes the one-click link mimeutil.UnsubscribeLink
// embeds in every outbound footer: ?id={scheduled_email_id}&email={recipient}.
// It always renders the same confirmation page, whether or not the id/email
// resolved to anything, so the link can't be used to probe for valid ids.
func unsubscribeHandler(eventStore *postgres.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduledEmailID := r.URL.Query().Get("id")
		email := r.URL.Query().Get("email")

		if scheduledEmailID != "" && email != "" {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			ownerID, err := eventStore.OwnerIDForScheduledEmail(ctx, scheduledEmailID)
			if err != nil {
				logger.Error("unsubscribe: resolve owner", "error", err, "scheduled_email_id", scheduledEmailID)
			} else if ownerID == "" {
				logger.Warn("unsubscribe: no scheduled email for id", "scheduled_email_id", scheduledEmailID)
			} else if err := eventStore.MarkUnsubscribed(ctx, ownerID, email); err != nil {
				logger.Error("unsubscribe: mark unsubscribed", "error", err, "owner_id", ownerID)
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<html><body><h1>You've been unsubscribed.</h1><p>You will no longer receive marketing emails from this sender.</p></body></html>`)
	}
}

func actionHandler(runner *action.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req action.Request
		if !httputil.Decode(w, r, &req) {
			return
		}
		res, err := runner.Run(r.Context(), req)
		if err != nil {
			httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		httputil.OK(w, res)
	}
}

// forwardAdapter satisfies inbox.ForwardSender over a dispatcher.ESPSender,
// for the service-forward fallback when inbox injection is unavailable.
type forwardAdapter struct {
	sender dispatcher.ESPSender
}

func (f forwardAdapter) Send(ctx context.Context, msg inbox.ForwardMessage) error {
	_, err := f.sender.Send(ctx, dispatcher.OutboundMessage{
		To:       msg.To,
		From:     msg.From,
		FromName: msg.FromName,
		ReplyTo:  msg.ReplyTo,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
	})
	return err
}
