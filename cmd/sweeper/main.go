// Command sweeper runs the periodic lead-sweep loop (C9) as its own
// deployable process, separate from the API server that handles
// webhooks and action-token requests. Grounded on the teacher's
// cmd/conversation-worker/main.go: its own config load, its own pool,
// a signal-driven context cancellation, one ticker loop for the
// process lifetime.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/inkline/bookingbot/internal/clockid"
	appconfig "github.com/inkline/bookingbot/internal/config"
	"github.com/inkline/bookingbot/internal/events"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/notify"
	"github.com/inkline/bookingbot/internal/sweeper"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/internal/whatsapp"
	"github.com/inkline/bookingbot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookingbot sweeper", "env", cfg.Env, "artist_id", cfg.ArtistID)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required: the sweeper's idempotency check has no durable fallback")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := pgxpool.New(connCtx, cfg.DatabaseURL)
	connCancel()
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
			redisClient = redis.NewClient(opts)
			defer redisClient.Close()
		} else {
			logger.Error("failed to parse REDIS_URL", "error", err)
		}
	}

	clock := clockid.New()
	leadsRepo := leads.NewPostgresRepository(pool)
	processedStore := events.NewProcessedStore(pool)
	eventStore := systemevent.NewStore(pool)
	arbiter := window.NewArbiter(window.NewCache(redisClient), eventStore, time.Now)
	notifier := whatsapp.NewNotifier(os.Getenv("WHATSAPP_ACCESS_TOKEN"), os.Getenv("WHATSAPP_PHONE_NUMBER_ID"), cfg.WhatsAppDryRun, logger)

	chatNotifier := notify.NewChatNotifier(cfg.OperatorChatWebhookURL, logger)
	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sendgridSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sendgridSender != nil {
		emailSender = sendgridSender
	}
	operatorService := notify.NewOperatorService(chatNotifier, emailSender, splitOperatorEmails(os.Getenv("OPERATOR_EMAILS")), logger)

	sw := sweeper.New(leadsRepo, processedStore, arbiter, notifier, operatorService, eventStore, clock, logger)

	interval := cfg.SweeperInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	runOnce(ctx, sw, logger)
	for {
		select {
		case <-stop:
			logger.Info("sweeper shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, sw, logger)
		}
	}
}

func runOnce(ctx context.Context, sw *sweeper.Sweeper, logger *logging.Logger) {
	n, err := sw.Run(ctx)
	if err != nil {
		logger.Error("sweeper run failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("sweeper run complete", "leads_processed", n)
	}
}

func splitOperatorEmails(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
