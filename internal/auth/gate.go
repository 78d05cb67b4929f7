package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// Gate authenticates inbound requests and populates the request principal.
// The verifier behind it is chosen once at construction: the identity
// provider when configured, otherwise the local fallback.
type Gate struct {
	verifier   TokenVerifier
	fallback   bool
	normalizer *respond.Normalizer
	logger     *logger.Logger
}

// NewGate selects the verifier from configuration and builds the gate.
func NewGate(cfg config.AuthConfig, normalizer *respond.Normalizer, log *logger.Logger) (*Gate, error) {
	g := &Gate{normalizer: normalizer, logger: log}

	if cfg.ProviderURL != "" {
		timeout := cfg.ProviderTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		g.verifier = NewProviderVerifier(cfg.ProviderURL, &http.Client{Timeout: timeout})
		return g, nil
	}

	local, err := NewLocalVerifier(cfg.LocalSecret, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	g.verifier = local
	g.fallback = true
	log.Warn("Identity provider not configured, using local fallback verifier")
	return g, nil
}

// Verifier exposes the selected verifier, mainly so the login flow can
// mint tokens when running in fallback mode.
func (g *Gate) Verifier() TokenVerifier { return g.verifier }

// UsesFallback reports whether the gate runs on the local fallback
// verifier instead of the identity provider.
func (g *Gate) UsesFallback() bool { return g.fallback }

// Authenticate extracts and verifies the bearer credential, returning the
// request principal.
func (g *Gate) Authenticate(r *http.Request) (*types.Principal, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	if g.fallback {
		// Reduced assurance, not an error: make every exercise of the
		// fallback visible in the security log.
		g.logger.Security("degraded_verifier_in_use", map[string]interface{}{
			"verifier": g.verifier.Name(),
			"path":     r.URL.Path,
		})
	}

	principal, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// Middleware requires a verified principal and rejects the request with
// Unauthorized otherwise.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.Authenticate(r)
		if err != nil {
			g.normalizer.Write(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// OptionalMiddleware performs the same verification but never fails the
// request: verification errors are logged and swallowed, leaving the
// principal unset.
func (g *Gate) OptionalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.Authenticate(r)
		if err != nil {
			g.logger.WithError(err).Debug("Optional authentication skipped")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole fails with Forbidden when the principal is unset or its
// resolved role is not in the allowed set. Role resolution follows the
// explicit role field first, then the role embedded in custom claims.
func (g *Gate) RequireRole(allowed ...types.UserRole) func(http.Handler) http.Handler {
	allowedSet := make(map[types.UserRole]bool, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				g.normalizer.Write(w, r, types.NewForbiddenError("authentication required for this resource"))
				return
			}

			role := principal.ResolveRole()
			if role == "" || !allowedSet[role] {
				g.logger.Audit(principal.Subject, "access", r.URL.Path, false, map[string]interface{}{
					"role": string(role),
				})
				g.normalizer.Write(w, r, types.NewForbiddenError("insufficient role for this resource"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", types.NewUnauthorizedError("missing authorization header", nil)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", types.NewUnauthorizedError("invalid authorization header format", nil)
	}
	return parts[1], nil
}
