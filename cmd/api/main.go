package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inkline/bookingbot/internal/actiontoken"
	"github.com/inkline/bookingbot/internal/clockid"
	appconfig "github.com/inkline/bookingbot/internal/config"
	"github.com/inkline/bookingbot/internal/copy"
	"github.com/inkline/bookingbot/internal/events"
	"github.com/inkline/bookingbot/internal/httpapi"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/metrics"
	"github.com/inkline/bookingbot/internal/notify"
	"github.com/inkline/bookingbot/internal/orchestrator"
	"github.com/inkline/bookingbot/internal/payments"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/internal/tour"
	"github.com/inkline/bookingbot/internal/whatsapp"
	"github.com/inkline/bookingbot/migrations"
	"github.com/inkline/bookingbot/pkg/logging"
)

// main wires the single-artist booking broker: Postgres-backed leads,
// outbox and action-token stores, a Redis-cached messaging-window
// arbiter, the WhatsApp transport, Stripe checkout, and the dual
// chat+email operator channel, then serves the webhook/action-token
// HTTP surface with graceful shutdown. Grounded on the teacher's
// cmd/api/main.go overall shape (env load, pool connect, auto-migrate,
// goroutine server start, signal-driven shutdown) — trimmed of every
// clinic/EMR/voice/LLM-specific dependency that shape originally wired.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookingbot API server", "env", cfg.Env, "port", cfg.Port, "artist_id", cfg.ArtistID)

	clock := clockid.New()

	pool := connectPostgres(cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
		runAutoMigrate(pool, logger)
	}

	redisClient := connectRedis(cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	leadsRepo := initializeLeadsRepository(pool)
	outboxStore := initializeOutbox(pool)
	processedStore := initializeProcessedStore(pool)
	tokenStore := initializeActionTokenStore(pool, clock)
	eventStore := initializeSystemEventStore(pool)

	windowCache := window.NewCache(redisClient)
	arbiter := window.NewArbiter(windowCache, eventStore, time.Now)

	copyRenderer := copy.NewRenderer(cfg.StudioName)

	notifier := whatsapp.NewNotifier(os.Getenv("WHATSAPP_ACCESS_TOKEN"), os.Getenv("WHATSAPP_PHONE_NUMBER_ID"), cfg.WhatsAppDryRun, logger)

	checkoutCreator := payments.NewStripeCheckoutCreator(
		cfg.StripeAPIKey,
		cfg.PublicBaseURL+"/a/deposit-success",
		cfg.PublicBaseURL+"/a/deposit-cancelled",
		cfg.StripeDryRun,
		logger,
	)

	chatNotifier := notify.NewChatNotifier(cfg.OperatorChatWebhookURL, logger)
	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sendgridSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sendgridSender != nil {
		emailSender = sendgridSender
	}
	operatorEmails := splitNonEmpty(os.Getenv("OPERATOR_EMAILS"))
	operatorService := notify.NewOperatorService(chatNotifier, emailSender, operatorEmails, logger)

	metricsReg := prometheus.NewRegistry()
	appMetrics := metrics.New(metricsReg)

	orch := orchestrator.New(leadsRepo, arbiter, outboxStore, copyRenderer, operatorService, tour.DefaultSchedule(clock.Now()), clock, logger)
	correlator := payments.NewCorrelator(leadsRepo, processedStore, eventStore, arbiter, notifier, operatorService, nil, clock, logger)

	if cfg.OutboxEnabled && outboxStore != nil {
		deliverer := events.NewDeliverer(outboxStore, whatsapp.NewDeliveryHandler(notifier), logger)
		delivererCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go deliverer.Start(delivererCtx)
	}

	inboundHandler := httpapi.NewInboundHandler(httpapi.InboundDeps{
		ArtistID:     cfg.ArtistID,
		VerifyToken:  cfg.WhatsAppVerifyToken,
		AppSecret:    cfg.WhatsAppAppSecret,
		Leads:        leadsRepo,
		Orchestrator: orch,
		Processed:    processedStore,
		Metrics:      appMetrics,
		Logger:       logger,
	})
	paymentHandler := httpapi.NewPaymentHandler(cfg.ArtistID, cfg.StripeWebhookSecret, correlator, logger)
	actionTokenHandler := httpapi.NewActionTokenHandler(tokenStore, leadsRepo, outboxStore, copyRenderer, checkoutCreator, logger)
	statsHandler := httpapi.NewStatsHandler(leadsRepo, time.Now, logger)
	issueTokenHandler := httpapi.NewActionTokenIssueHandler(tokenStore, leadsRepo, cfg.PublicBaseURL, cfg.ActionTokenExpiryDays, logger)

	router := httpapi.New(&httpapi.Config{
		Logger:      logger,
		Inbound:     inboundHandler,
		Payment:     paymentHandler,
		ActionToken: actionTokenHandler,
		Stats:       statsHandler,
		IssueToken:  issueTokenHandler,

		AdminAuthSecret:    cfg.AdminAPIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,

		RateLimitEnabled:       cfg.RateLimitEnabled,
		RateLimitRequests:      cfg.RateLimitRequests,
		RateLimitWindowSeconds: cfg.RateLimitWindowSeconds,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	mux.Handle("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func connectPostgres(dbURL string, logger *logging.Logger) *pgxpool.Pool {
	if dbURL == "" {
		logger.Error("DATABASE_URL is required: the outbox and processed-event stores have no durable fallback")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")
	return pool
}

func connectRedis(redisURL string, logger *logging.Logger) *redis.Client {
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, window cache disabled")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("failed to parse REDIS_URL", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to ping redis", "error", err)
		return nil
	}
	logger.Info("connected to redis")
	return client
}

func runAutoMigrate(pool *pgxpool.Pool, logger *logging.Logger) {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("auto-migrate: failed to open migrations source", "error", err)
		return
	}
	dbDriver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		logger.Error("auto-migrate: failed to create db driver", "error", err)
		return
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("auto-migrate: failed to create migrator", "error", err)
		return
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("auto-migrate: migration failed", "error", err)
		return
	}
	logger.Info("auto-migrate: database migrations applied")
}

func initializeLeadsRepository(pool *pgxpool.Pool) leads.Repository {
	if pool != nil {
		return leads.NewPostgresRepository(pool)
	}
	return leads.NewInMemoryRepository()
}

func initializeOutbox(pool *pgxpool.Pool) *events.OutboxStore {
	if pool == nil {
		return nil
	}
	return events.NewOutboxStore(pool)
}

func initializeProcessedStore(pool *pgxpool.Pool) *events.ProcessedStore {
	if pool == nil {
		return nil
	}
	return events.NewProcessedStore(pool)
}

func initializeActionTokenStore(pool *pgxpool.Pool, clock clockid.Clock) *actiontoken.Store {
	if pool == nil {
		return nil
	}
	return actiontoken.NewStore(pool, clock)
}

func initializeSystemEventStore(pool *pgxpool.Pool) systemevent.Recorder {
	if pool == nil {
		return systemevent.NewInMemoryStore()
	}
	return systemevent.NewStore(pool)
}

func splitNonEmpty(raw string) []string {
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
