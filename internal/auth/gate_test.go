package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()

	log := logger.New("error")
	gate, err := NewGate(config.AuthConfig{
		LocalSecret: "test-secret",
		Issuer:      "carepulse-api",
	}, respond.NewNormalizer(false, log), log)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	return gate
}

func signToken(t *testing.T, gate *Gate, subject string, role types.UserRole) string {
	t.Helper()

	local, ok := gate.Verifier().(*LocalVerifier)
	if !ok {
		t.Fatal("Expected the gate to run on the local verifier")
	}
	token, err := local.Sign(subject, role, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestGate_Middleware_MissingHeader(t *testing.T) {
	gate := newTestGate(t)

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run for unauthenticated requests")
	}))

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] != "Unauthorized" {
		t.Errorf("Expected error 'Unauthorized', got %v", body["error"])
	}
	if body["message"] != "missing authorization header" {
		t.Errorf("Expected message 'missing authorization header', got %v", body["message"])
	}
	if id, _ := body["correlation_id"].(string); id == "" {
		t.Error("Expected a correlation id")
	}
}

func TestGate_Middleware_MalformedHeader(t *testing.T) {
	gate := newTestGate(t)

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run for unauthenticated requests")
	}))

	for _, header := range []string{"Token abc", "Bearer", "abc"} {
		req := httptest.NewRequest("GET", "/api/v1/patients", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: expected status 401, got %d", header, w.Code)
		}
	}
}

func TestGate_Middleware_ValidToken(t *testing.T) {
	gate := newTestGate(t)
	token := signToken(t, gate, "nurse@example.com", types.RoleNurse)

	var principal *types.Principal
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if principal == nil {
		t.Fatal("Expected a principal in the request context")
	}
	if principal.Subject != "nurse@example.com" {
		t.Errorf("Expected subject 'nurse@example.com', got '%s'", principal.Subject)
	}
	if principal.ResolveRole() != types.RoleNurse {
		t.Errorf("Expected role 'nurse', got '%s'", principal.ResolveRole())
	}
}

func TestGate_OptionalMiddleware(t *testing.T) {
	gate := newTestGate(t)

	var principal *types.Principal
	var called bool
	handler := gate.OptionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		principal = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No credential: the request proceeds anonymously.
	req := httptest.NewRequest("GET", "/api/v1/public", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if !called {
		t.Fatal("Handler should run for anonymous requests")
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if principal != nil {
		t.Error("Expected no principal for anonymous request")
	}

	// A bad credential is swallowed, not rejected.
	called = false
	req = httptest.NewRequest("GET", "/api/v1/public", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if !called {
		t.Fatal("Handler should run even with an invalid credential")
	}
	if principal != nil {
		t.Error("Expected no principal for invalid credential")
	}

	// A valid credential still attaches the principal.
	token := signToken(t, gate, "user@example.com", types.RolePatient)
	req = httptest.NewRequest("GET", "/api/v1/public", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if principal == nil {
		t.Fatal("Expected a principal for valid credential")
	}
}

func TestGate_RequireRole(t *testing.T) {
	gate := newTestGate(t)

	handler := gate.RequireRole(types.RoleDoctor, types.RoleAdministrator)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// No principal at all.
	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 without principal, got %d", w.Code)
	}

	// Authenticated but with an insufficient role.
	patient := &types.Principal{Subject: "patient@example.com", Role: types.RolePatient}
	req = httptest.NewRequest("GET", "/api/v1/patients", nil)
	req = req.WithContext(WithPrincipal(req.Context(), patient))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for insufficient role, got %d", w.Code)
	}

	// Role from custom claims counts when the explicit field is unset.
	claimed := &types.Principal{
		Subject: "doctor@example.com",
		Claims:  map[string]interface{}{"role": "doctor"},
	}
	req = httptest.NewRequest("GET", "/api/v1/patients", nil)
	req = req.WithContext(WithPrincipal(req.Context(), claimed))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for claim-derived role, got %d", w.Code)
	}

	// Unknown role strings never authorize.
	bogus := &types.Principal{Subject: "x@example.com", Claims: map[string]interface{}{"role": "superuser"}}
	req = httptest.NewRequest("GET", "/api/v1/patients", nil)
	req = req.WithContext(WithPrincipal(req.Context(), bogus))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for unknown role, got %d", w.Code)
	}
}

func TestProviderVerifier_Verify(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Token != "good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(verifyResponse{
			Subject: "provider-user",
			Claims:  map[string]interface{}{"role": "doctor"},
		})
	}))
	defer provider.Close()

	verifier := NewProviderVerifier(provider.URL, provider.Client())

	principal, err := verifier.Verify(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if principal.Subject != "provider-user" {
		t.Errorf("Expected subject 'provider-user', got '%s'", principal.Subject)
	}
	if !principal.IssuerVerified {
		t.Error("Provider-verified principals must be marked issuer-verified")
	}
	if principal.ResolveRole() != types.RoleDoctor {
		t.Errorf("Expected role 'doctor', got '%s'", principal.ResolveRole())
	}

	// The provider rejecting the token is Unauthorized, not an outage.
	_, err = verifier.Verify(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("Expected error for rejected token")
	}
	pe, _ := types.AsPipelineError(err)
	if pe.Code != types.ErrCodeUnauthorized {
		t.Errorf("Expected code %s, got %s", types.ErrCodeUnauthorized, pe.Code)
	}
}

func TestProviderVerifier_Verify_Outage(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := provider.URL
	provider.Close()

	verifier := NewProviderVerifier(url, &http.Client{Timeout: time.Second})

	_, err := verifier.Verify(context.Background(), "any-token")
	if err == nil {
		t.Fatal("Expected error when the provider is unreachable")
	}

	pe, ok := types.AsPipelineError(err)
	if !ok {
		t.Fatalf("Expected a pipeline error, got %T", err)
	}
	// An unreachable provider must surface as Unauthorized, never as a
	// silent downgrade to local verification.
	if pe.HTTPStatus() != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", pe.HTTPStatus())
	}
}

func TestProviderVerifier_Verify_MissingSubject(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Claims: map[string]interface{}{}})
	}))
	defer provider.Close()

	verifier := NewProviderVerifier(provider.URL, provider.Client())
	if _, err := verifier.Verify(context.Background(), "token"); err == nil {
		t.Error("Expected error for verification response without subject")
	}
}

func TestNewGate_SelectsProviderWhenConfigured(t *testing.T) {
	log := logger.New("error")

	gate, err := NewGate(config.AuthConfig{
		ProviderURL:     "https://idp.example.com/verify",
		ProviderTimeout: 2 * time.Second,
	}, respond.NewNormalizer(false, log), log)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	if gate.UsesFallback() {
		t.Error("Gate should not use the fallback when a provider is configured")
	}
	if gate.Verifier().Name() != "identity-provider" {
		t.Errorf("Expected identity-provider verifier, got %s", gate.Verifier().Name())
	}
}

func TestNewGate_FallbackRequiresSecret(t *testing.T) {
	log := logger.New("error")

	if _, err := NewGate(config.AuthConfig{}, respond.NewNormalizer(false, log), log); err == nil {
		t.Error("Expected error with neither provider nor local secret configured")
	}
}
