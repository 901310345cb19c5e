package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inkline/bookingbot/internal/httpmiddleware"
	"github.com/inkline/bookingbot/pkg/logging"
)

// Config wires the router's route groups to their handlers. Grounded
// on the teacher's internal/api/router/router.go: a flat Config
// struct, conditional route mounting on nil checks, chi middleware
// stacking.
type Config struct {
	Logger *logging.Logger

	Inbound     *InboundHandler
	Payment     *PaymentHandler
	ActionToken *ActionTokenHandler
	Stats       *StatsHandler
	IssueToken  *ActionTokenIssueHandler

	AdminAuthSecret    string
	CORSAllowedOrigins []string

	RateLimitEnabled       bool
	RateLimitRequests      float64
	RateLimitWindowSeconds int
}

// New builds the chi router implementing the external interfaces (§6):
// the inbound message webhook, the payment webhook, the action-token
// confirm/execute pair, and the admin surface.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.CorrelationID)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	webhookBurst := cfg.RateLimitRequests
	if webhookBurst <= 0 {
		webhookBurst = 5
	}
	webhookRate := webhookBurst
	if cfg.RateLimitWindowSeconds > 0 {
		webhookRate = webhookBurst / float64(cfg.RateLimitWindowSeconds)
	}

	r.Get("/health", healthHandler)

	r.Group(func(public chi.Router) {
		if cfg.RateLimitEnabled {
			public.Use(httpmiddleware.RateLimit(webhookRate, int(webhookBurst)*20))
		}
		if cfg.Inbound != nil {
			public.Get("/webhooks/whatsapp", cfg.Inbound.HandleVerification)
			public.Post("/webhooks/whatsapp", cfg.Inbound.HandleMessage)
		}
		if cfg.Payment != nil {
			public.Post("/webhooks/stripe", cfg.Payment.Handle)
		}
		if cfg.ActionToken != nil {
			public.Get("/a/{token}", cfg.ActionToken.HandleConfirm)
			public.Post("/a/{token}", cfg.ActionToken.HandleExecute)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.Stats != nil {
				admin.Get("/stats", cfg.Stats.Handle)
			}
			if cfg.IssueToken != nil {
				admin.Post("/leads/{leadID}/actions/{type}", cfg.IssueToken.Handle)
			}
		})
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
