// Package gateway assembles the request-protection pipeline: every
// inbound request passes the suspicious-pattern scanner, the rate limiter
// bank, the authentication gate, the CSRF guard and any per-route role
// check, in that order, before reaching its handler.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/auth"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/csrf"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/detect"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/ratelimit"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// Service wires the guards into an HTTP server.
type Service struct {
	router     *mux.Router
	server     *http.Server
	cfg        *config.Config
	logger     *logger.Logger
	normalizer *respond.Normalizer

	gate         *auth.Gate
	csrfGuard    *csrf.Guard
	bank         *ratelimit.Bank
	limiter      *ratelimit.Middleware
	scanner      *detect.Scanner
	requestGuard *detect.RequestGuard
	metrics      *Metrics

	stopEviction func()
	startTime    time.Time
}

// RouteOptions selects the per-route protections for a registered handler.
type RouteOptions struct {
	// Tier names the rate limiter tier; empty means only the general
	// tier applies.
	Tier string
	// Roles restricts the route to principals holding one of the given
	// roles. Empty leaves the route open to any authenticated caller.
	Roles []types.UserRole
	// Methods restricts the accepted HTTP methods.
	Methods []string
}

// NewService builds the pipeline from configuration.
func NewService(cfg *config.Config, log *logger.Logger) (*Service, error) {
	normalizer := respond.NewNormalizer(cfg.IsDevelopment(), log)

	var store ratelimit.CounterStore
	var stopEviction func()
	if cfg.RateLimit.RedisAddr != "" {
		store = ratelimit.NewRedisStore(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		log.WithFields(map[string]interface{}{"addr": cfg.RateLimit.RedisAddr}).Info("Rate limit counters backed by Redis")
	} else {
		memory := ratelimit.NewMemoryStore()
		if cfg.RateLimit.EvictionInterval > 0 {
			stopEviction = memory.StartEviction(cfg.RateLimit.EvictionInterval, cfg.RateLimit.EvictionGrace)
		}
		store = memory
	}

	bank := ratelimit.NewBank(store, cfg.RateLimit, cfg.IsDevelopment())
	limiter := ratelimit.NewMiddleware(bank, normalizer, log, cfg.RateLimit.SkipPaths, nil)

	gate, err := auth.NewGate(cfg.Auth, normalizer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build authentication gate: %w", err)
	}

	s := &Service{
		router:       mux.NewRouter(),
		cfg:          cfg,
		logger:       log,
		normalizer:   normalizer,
		gate:         gate,
		csrfGuard:    csrf.NewGuard(cfg.CSRF, log),
		bank:         bank,
		limiter:      limiter,
		scanner:      detect.NewScanner(log),
		requestGuard: detect.NewRequestGuard(cfg.RequestGuard, normalizer, log),
		metrics:      NewMetrics(),
		stopEviction: stopEviction,
		startTime:    time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

// Gate exposes the authentication gate for callers composing their own
// handlers.
func (s *Service) Gate() *auth.Gate { return s.gate }

// CSRF exposes the CSRF guard for administrative reconfiguration and
// logout flows.
func (s *Service) CSRF() *csrf.Guard { return s.csrfGuard }

// Normalizer exposes the error normalizer so business handlers report
// failures in the same shape the guards do.
func (s *Service) Normalizer() *respond.Normalizer { return s.normalizer }

// Handle registers a business handler behind the pipeline with per-route
// protections.
func (s *Service) Handle(path string, handler http.Handler, opts RouteOptions) {
	wrapped := handler
	if len(opts.Roles) > 0 {
		wrapped = s.gate.RequireRole(opts.Roles...)(wrapped)
	}
	if opts.Tier != "" && opts.Tier != ratelimit.TierGeneral {
		wrapped = s.limiter.Tier(opts.Tier)(wrapped)
	}

	route := s.router.Handle(path, wrapped)
	if len(opts.Methods) > 0 {
		route.Methods(opts.Methods...)
	}
}

// HandleFunc is Handle for plain handler functions.
func (s *Service) HandleFunc(path string, handler func(http.ResponseWriter, *http.Request), opts RouteOptions) {
	s.Handle(path, http.HandlerFunc(handler), opts)
}

// ServeHTTP lets the service be exercised directly in tests.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the HTTP server.
func (s *Service) Start() error {
	s.logger.WithFields(map[string]interface{}{"addr": s.server.Addr}).Info("Starting protection pipeline")
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully and stops background sweeps.
func (s *Service) Stop() error {
	if s.stopEviction != nil {
		s.stopEviction()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping protection pipeline")
	return s.server.Shutdown(ctx)
}

// setupRoutes registers the pipeline's own endpoints.
func (s *Service) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/csrf-token", s.handleCSRFToken).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/auth/logout", s.handleLogout).Methods(http.MethodPost)
}

// setupMiddleware fixes the guard ordering for every request.
func (s *Service) setupMiddleware() {
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.requestGuard.Middleware)
	s.router.Use(s.scanner.Middleware)
	s.router.Use(s.limiter.Tier(ratelimit.TierGeneral))
	s.router.Use(s.authDispatchMiddleware)
	s.router.Use(csrf.Middleware(s.csrfGuard, s.normalizer))
}

// isPublicPath reports whether a path is served with optional
// authentication instead of the hard gate.
func (s *Service) isPublicPath(path string) bool {
	switch path {
	case "/health", "/metrics", "/api/v1/csrf-token":
		return true
	}
	for _, prefix := range s.cfg.Auth.PublicPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
