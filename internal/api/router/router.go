package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/proofframe/proofframe/internal/http/handlers"
	httpmiddleware "github.com/proofframe/proofframe/internal/http/middleware"
	"github.com/proofframe/proofframe/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Analysis        *handlers.AnalysisHandler
	Liveness        *handlers.LivenessHandler
	AdminReports    *handlers.AdminReportsHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	CORSAllowedOrigins []string

	// Requests per second and burst applied to challenge issuance.
	// Zero disables rate limiting.
	IssueRateLimit float64
	IssueRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Analysis != nil {
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/", cfg.Analysis.Submit)
			r.Get("/{jobID}", cfg.Analysis.GetJob)
		})
	}

	if cfg.Liveness != nil {
		r.Route("/liveness/sessions", func(r chi.Router) {
			if cfg.IssueRateLimit > 0 {
				r.With(httpmiddleware.RateLimit(cfg.IssueRateLimit, cfg.IssueRateBurst)).Post("/", cfg.Liveness.CreateSession)
			} else {
				r.Post("/", cfg.Liveness.CreateSession)
			}
			r.Post("/{sessionID}/response", cfg.Liveness.SubmitResponse)
			r.Get("/{sessionID}", cfg.Liveness.GetSession)
		})
	}

	if cfg.AdminReports != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/reports", cfg.AdminReports.ListReports)
		})
	}

	return r
}
