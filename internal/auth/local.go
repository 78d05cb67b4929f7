package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// LocalVerifier verifies self-issued HS256 tokens with a locally held
// secret. It exists as the degraded-security fallback used when no
// identity provider is configured.
type LocalVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewLocalVerifier creates the fallback verifier.
func NewLocalVerifier(secret, issuer string) (*LocalVerifier, error) {
	if secret == "" {
		return nil, errors.New("local verifier requires a signing secret")
	}
	return &LocalVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Name identifies the verifier in logs.
func (v *LocalVerifier) Name() string { return "local-fallback" }

// Verify parses and validates the token signature, expiry and issuer.
func (v *LocalVerifier) Verify(_ context.Context, token string) (*types.Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewUnauthorizedError("credential expired", err)
		}
		return nil, types.NewUnauthorizedError("invalid credential", err)
	}
	if !parsed.Valid {
		return nil, types.NewUnauthorizedError("invalid credential", nil)
	}

	if v.issuer != "" {
		issuer, _ := claims.GetIssuer()
		if issuer != v.issuer {
			return nil, types.NewUnauthorizedError("credential issuer mismatch", nil)
		}
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, types.NewUnauthorizedError("credential missing subject", err)
	}

	p := &types.Principal{
		Subject:        subject,
		Claims:         map[string]interface{}(claims),
		IssuerVerified: false,
	}
	p.Role = p.ResolveRole()
	return p, nil
}

// Sign mints a self-issued token. Used by the login flow when running in
// fallback mode and by tests.
func (v *LocalVerifier) Sign(subject string, role types.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"iss":  v.issuer,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(ttl)),
		"nbf":  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
