package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/automail/internal/action"
	"github.com/ignite/automail/internal/automation"
	"github.com/ignite/automail/internal/config"
	"github.com/ignite/automail/internal/dispatcher"
	"github.com/ignite/automail/internal/pkg/distlock"
	"github.com/ignite/automail/internal/pkg/httpretry"
	"github.com/ignite/automail/internal/pkg/logger"
	"github.com/ignite/automail/internal/repository/postgres"
	"github.com/ignite/automail/internal/verifier"
)

func main() {
	log.Println("starting automail worker")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
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

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	log.Println("database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Printf("warning: invalid REDIS_URL, falling back to PG advisory locks: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				log.Printf("warning: redis ping failed, falling back to PG advisory locks: %v", err)
				redisClient.Close()
				redisClient = nil
			} else {
				log.Println("redis connected (distributed locking enabled)")
			}
			pingCancel()
		}
	} else {
		log.Println("redis not configured, using PG advisory locks for distributed locking")
	}

	automationStore := postgres.NewAutomationStore(db)
	verifierStore := postgres.NewVerifierStore(db)
	dispatcherStore := postgres.NewDispatcherStore(db)

	var sender dispatcher.ESPSender
	if cfg.SendGrid.APIKey != "" {
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.SendGrid.Timeout()}, 3)
		sender = dispatcher.NewSendGridSender(cfg.SendGrid.APIKey, client)
	} else {
		sender = dispatcher.NullSender{}
		log.Println("outbound sender: NullSender (SENDGRID_API_KEY not set, dry run)")
	}

	scheduler := automation.NewScheduler(automationStore)
	verifierSvc := verifier.New(verifierStore)
	dispatcherSvc := dispatcher.New(dispatcherStore, sender, cfg.Unsubscribe.BaseURL)
	runner := action.New(scheduler, verifierSvc, dispatcherSvc)

	reg := newWorkerRegistry(db)
	reg.register(context.Background())
	go reg.heartbeatLoop(context.Background())
	defer reg.deregister(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick(ctx, "refresh", cfg.Polling.RefreshInterval(), redisClient, db, runner, action.Request{Action: action.Refresh}, reg)
	tick(ctx, "verify", cfg.Polling.VerifyInterval(), redisClient, db, runner, action.Request{Action: action.Verify}, reg)
	tick(ctx, "send", cfg.Polling.SendInterval(), redisClient, db, runner, action.Request{Action: action.Send}, reg)

	log.Println("worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	cancel()
	if redisClient != nil {
		redisClient.Close()
	}
	time.Sleep(1 * time.Second)
	log.Println("worker stopped")
}

// tick starts a background goroutine running action req on interval,
// single-flighted across horizontally scaled worker instances via a
// distributed lock keyed by the action's name so only one instance runs
// a given phase at a time.
func tick(
	ctx context.Context,
	name string,
	interval time.Duration,
	redisClient *redis.Client,
	db *sql.DB,
	runner *action.Runner,
	req action.Request,
	reg *workerRegistry,
) {
	lock := distlock.NewLock(redisClient, db, "automail:tick:"+name, interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runTick(ctx, name, lock, runner, req, reg)
			}
		}
	}()
}

func runTick(ctx context.Context, name string, lock distlock.DistLock, runner *action.Runner, req action.Request, reg *workerRegistry) {
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("worker: acquire lock", "action", name, "error", err)
		return
	}
	if !acquired {
		return // another instance already owns this tick
	}
	defer lock.Release(ctx)

	res, err := runner.Run(ctx, req)
	if err != nil {
		logger.Error("worker: action failed", "action", name, "error", err)
		reg.recordError(ctx, name, err.Error())
		return
	}
	logger.Info("worker: action completed", "action", name,
		"verify_errors", res.VerifyErrorCount, "send_errors", res.SendErrorCount)
	reg.recordSuccess(ctx, name)
}

// workerRegistry registers this process in the mail_workers table with a
// periodic heartbeat, so operators can see which periodic-action instance
// is live and what it last ran.
type workerRegistry struct {
	db       *sql.DB
	workerID string
	hostname string
}

func newWorkerRegistry(db *sql.DB) *workerRegistry {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &workerRegistry{db: db, workerID: uuid.New().String(), hostname: hostname}
}

func (r *workerRegistry) register(ctx context.Context) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mail_workers (id, hostname, status, started_at, last_heartbeat_at)
		VALUES ($1, $2, 'running', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET status = 'running', started_at = NOW(), last_heartbeat_at = NOW()
	`, r.workerID, r.hostname)
	if err != nil {
		logger.Error("worker: register", "error", err)
	}
}

func (r *workerRegistry) deregister(ctx context.Context) {
	_, err := r.db.ExecContext(ctx, `UPDATE mail_workers SET status = 'stopped' WHERE id = $1`, r.workerID)
	if err != nil {
		logger.Error("worker: deregister", "error", err)
	}
}

func (r *workerRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.db.ExecContext(ctx, `UPDATE mail_workers SET last_heartbeat_at = NOW() WHERE id = $1`, r.workerID)
			if err != nil {
				logger.Error("worker: heartbeat", "error", err)
			}
		}
	}
}

func (r *workerRegistry) recordSuccess(ctx context.Context, actionName string) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mail_workers SET last_action = $2, last_action_at = NOW(), last_error = '' WHERE id = $1
	`, r.workerID, actionName)
	if err != nil {
		logger.Error("worker: record success", "error", err)
	}
}

func (r *workerRegistry) recordError(ctx context.Context, actionName, message string) {
	meta, _ := json.Marshal(map[string]string{"action": actionName, "error": message})
	_, err := r.db.ExecContext(ctx, `
		UPDATE mail_workers SET last_action = $2, last_action_at = NOW(), last_error = $3 WHERE id = $1
	`, r.workerID, actionName, string(meta))
	if err != nil {
		logger.Error("worker: record error", "error", err)
	}
}
