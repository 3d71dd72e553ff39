package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"winterstorm/internal/cache"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/middleware/ratelimit"
	"winterstorm/internal/middleware/security"
	"winterstorm/internal/middleware/trace"
	"winterstorm/internal/services"
	appweb "winterstorm/web"
)

// Options configures NewServer. Plans is required; the rest have defaults.
type Options struct {
	Addr    string
	Plans   *services.PlanService
	Metrics *metrics.Metrics
	Logger  *applog.Logger
	// Ready reports whether the export backend is reachable.
	Ready func(ctx context.Context) error

	SessionTTL     time.Duration
	MaxSessions    int
	RateLimitRPM   int
	AllowedOrigins []string
}

type Server struct {
	http.Server
	templates *template.Template
	plans     *services.PlanService
	metrics   *metrics.Metrics
	logger    *applog.Logger
	ready     func(ctx context.Context) error

	sessions     *sessionStore
	cacheManager *cache.Manager
	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Plans == nil {
		return nil, errors.New("http: plan service is required")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}

	tmpl, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		templates:    tmpl,
		plans:        opts.Plans,
		metrics:      opts.Metrics,
		logger:       opts.Logger.WithComponent(applog.ComponentHTTP),
		ready:        opts.Ready,
		sessions:     newSessionStore(opts.MaxSessions, opts.SessionTTL),
		cacheManager: cache.NewManager(),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		detector:     security.NewDetector(),
		started:      time.Now(),
	}
	s.cacheManager.Register(s.sessions.cache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(applog.Middleware(s.logger))
	r.Use(applog.RequestIDMiddleware(func(r *http.Request) string {
		return chimw.GetReqID(r.Context())
	}))
	r.Use(trace.NewMiddleware(s.logger, s.metrics, s.detector.ExtractClientIP).Handler)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited, http.MethodPost))

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.Handle("/static/*", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Get("/", s.handleIndex)
		r.Post("/debts", s.handleAddDebt)
		r.Post("/debts/clear", s.handleClearDebts)
		r.Post("/strategy", s.handleStrategy)
		r.Get("/timeline.xlsx", s.handleTimelineXLSX)
		r.Post("/exports", s.handleExport)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         600,
		}).Handler)
		r.Post("/simulate", s.handleAPISimulate)
		r.Post("/compare", s.handleAPICompare)
		r.Post("/export", s.handleAPIExport)
	})

	return r
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
