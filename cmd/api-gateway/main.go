package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/auth"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/gateway"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/ratelimit"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/sanitize"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)

	service, err := gateway.NewService(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build protection pipeline")
		os.Exit(1)
	}

	registerRoutes(service, cfg)

	go func() {
		if err := service.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if err := service.Stop(); err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// registerRoutes attaches the upstream application handlers behind the
// pipeline. Business logic lives elsewhere; these routes only demonstrate
// the per-route protections.
func registerRoutes(service *gateway.Service, cfg *config.Config) {
	service.HandleFunc("/api/v1/auth/login", loginHandler(service, cfg), gateway.RouteOptions{
		Tier:    ratelimit.TierAuth,
		Methods: []string{http.MethodPost},
	})

	service.HandleFunc("/api/v1/profile", whoAmI, gateway.RouteOptions{
		Tier:    ratelimit.TierLight,
		Methods: []string{http.MethodGet},
	})

	service.HandleFunc("/api/v1/patients", whoAmI, gateway.RouteOptions{
		Tier:    ratelimit.TierMedium,
		Roles:   []types.UserRole{types.RoleDoctor, types.RoleNurse, types.RoleAdministrator},
		Methods: []string{http.MethodGet},
	})
}

type loginRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Role        string `json:"role" validate:"required"`
	DisplayName string `json:"display_name"`
}

// loginHandler mints local tokens when the gate runs in fallback mode so
// the pipeline can be exercised without an identity provider. With a
// provider configured, login belongs to the provider and this endpoint
// only says so.
func loginHandler(service *gateway.Service, cfg *config.Config) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		gate := service.Gate()
		if !gate.UsesFallback() || !cfg.IsDevelopment() {
			service.Normalizer().Write(w, r, types.NewForbiddenError("login is handled by the identity provider"))
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			service.Normalizer().Write(w, r, types.NewValidationError("request body must be valid JSON", nil))
			return
		}

		req.Email = sanitize.Email(req.Email)
		req.DisplayName = sanitize.String(req.DisplayName, cfg.Sanitizer.MaxStringLength)
		if err := validate.Struct(req); err != nil {
			fields := respond.NormalizeValidationErrors(err, "body")
			service.Normalizer().Write(w, r, types.NewValidationError("invalid login request", map[string]interface{}{
				"fields": fields,
			}))
			return
		}

		role := types.UserRole(req.Role)
		if !role.IsValid() {
			service.Normalizer().Write(w, r, types.NewValidationError("unknown role", nil))
			return
		}

		local, ok := gate.Verifier().(*auth.LocalVerifier)
		if !ok {
			service.Normalizer().Write(w, r, types.NewInternalError("token signer unavailable", nil))
			return
		}

		token, err := local.Sign(req.Email, role, time.Hour)
		if err != nil {
			service.Normalizer().Write(w, r, types.NewInternalError("failed to sign token", err))
			return
		}

		resp := map[string]interface{}{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": int64(time.Hour / time.Second),
		}
		if req.DisplayName != "" {
			resp["display_name"] = req.DisplayName
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// whoAmI echoes the verified principal attached by the pipeline.
func whoAmI(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"subject": principal.Subject,
		"role":    principal.ResolveRole(),
	})
}
