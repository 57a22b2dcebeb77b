// Package httptransport exposes the fundraising services over HTTP.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundly/internal/platform/metrics"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/httputil"
	"fundly/pkg/platform/middleware/admin"
	"fundly/pkg/platform/middleware/auth"
	"fundly/pkg/platform/middleware/metadata"
	"fundly/pkg/platform/middleware/request"
	"fundly/pkg/platform/middleware/requesttime"
	"fundly/pkg/platform/middleware/session"
	"fundly/pkg/platform/middleware/signature"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Authenticator auth.TokenAuthenticator
	AdminToken    string
	// CallbackSecret is the HMAC key payment gateway callbacks are signed with.
	CallbackSecret string
	// MaxReceiptBytes caps a bank transfer receipt upload. Zero selects
	// DefaultMaxReceiptBytes.
	MaxReceiptBytes int64
	AllowedOrigins  []string
	SecureCookies   bool
	HealthChecks    map[string]HealthCheck
	Clock           func() time.Time
}

type Services struct {
	Projects  ProjectService
	Donations DonationService
	Wizard    WizardService
}

func NewRouter(cfg RouterConfig, svc Services) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger, cfg.Metrics))
	r.Use(request.Recovery(logger))
	r.Use(requesttime.WithClock(clock))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID},
			ExposedHeaders:   []string{request.HeaderRequestID, "Retry-After", "Location"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(cfg.HealthChecks))
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	projects := NewProjectHandler(svc.Projects, logger)
	donations := NewDonationHandler(svc.Donations, logger)
	wizard := NewWizardHandler(svc.Wizard, logger, cfg.MaxReceiptBytes)

	r.Group(func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(auth.OptionalAuth(cfg.Authenticator, logger))
		}
		r.Use(session.Middleware(cfg.SecureCookies))
		projects.Register(r)
		wizard.Register(r)
	})

	// Gateway callbacks carry no visitor identity, only the gateway's signature.
	r.Group(func(r chi.Router) {
		r.Use(signature.RequireSignature(cfg.CallbackSecret, logger))
		donations.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
		projects.RegisterAdmin(r)
		donations.RegisterAdmin(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
