// Package auth implements the authentication gate: bearer credential
// extraction, token verification against the identity provider or the
// local fallback, and role-based authorization checks.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// TokenVerifier validates a bearer credential and produces the request
// principal. The implementation is selected once at startup, never per
// request.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*types.Principal, error)
	Name() string
}

// ProviderVerifier verifies tokens against the external identity
// provider's verification endpoint. Calls are bounded by the client
// timeout; a timeout or provider outage surfaces as Unauthorized and
// never silently falls back to local verification.
type ProviderVerifier struct {
	endpoint string
	client   *http.Client
}

// NewProviderVerifier creates a verifier calling the given endpoint.
func NewProviderVerifier(endpoint string, client *http.Client) *ProviderVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &ProviderVerifier{endpoint: endpoint, client: client}
}

// Name identifies the verifier in logs.
func (v *ProviderVerifier) Name() string { return "identity-provider" }

// verifyRequest is the provider's verification call payload.
type verifyRequest struct {
	Token string `json:"token"`
}

// verifyResponse is the provider's verification result.
type verifyResponse struct {
	Subject string                 `json:"subject"`
	Claims  map[string]interface{} `json:"claims"`
}

// Verify performs the one outbound identity-provider call.
func (v *ProviderVerifier) Verify(ctx context.Context, token string) (*types.Principal, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, types.NewInternalError("failed to encode verification request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewInternalError("failed to build verification request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// Includes timeouts and cancellation: the credential stays
		// unverified, so the request is unauthorized.
		return nil, types.NewUnauthorizedError("token verification unavailable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, types.NewUnauthorizedError("invalid or expired credential", nil)
	default:
		return nil, types.NewUnauthorizedError(
			fmt.Sprintf("token verification failed with status %d", resp.StatusCode), nil)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewUnauthorizedError("malformed verification response", err)
	}
	if result.Subject == "" {
		return nil, types.NewUnauthorizedError("verification response missing subject", nil)
	}

	p := &types.Principal{
		Subject:        result.Subject,
		Claims:         result.Claims,
		IssuerVerified: true,
	}
	p.Role = p.ResolveRole()
	return p, nil
}
