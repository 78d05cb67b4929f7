package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

const saltLength = 16

// Guard issues and verifies per-session anti-forgery tokens. A token is
// salt plus an HMAC of that salt under the session's secret; validity is
// bound to the session key that requested it, which prevents fixation
// across sessions.
type Guard struct {
	mu     sync.RWMutex
	cfg    config.CSRFConfig
	store  *Store
	logger *logger.Logger
}

// Issued is the result of minting a token: what the client must echo back
// and where.
type Issued struct {
	Token      string `json:"csrf_token"`
	HeaderName string `json:"header_name"`
	CookieName string `json:"cookie_name"`

	secret []byte
}

// NewGuard creates the CSRF guard with its own secret store.
func NewGuard(cfg config.CSRFConfig, log *logger.Logger) *Guard {
	return &Guard{
		cfg:    cfg,
		store:  NewStore(cfg.SecretTTL),
		logger: log,
	}
}

// Config returns a snapshot of the current configuration.
func (g *Guard) Config() config.CSRFConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Reconfigure swaps the guard's configuration. Intended for
// administrative use only; the secret store is left untouched.
func (g *Guard) Reconfigure(cfg config.CSRFConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// IssueToken mints a token for the session key and sets the session
// secret cookie on the response.
func (g *Guard) IssueToken(w http.ResponseWriter, sessionKey string) (Issued, error) {
	cfg := g.Config()

	secret, err := g.store.GetOrCreate(sessionKey)
	if err != nil {
		return Issued{}, err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return Issued{}, fmt.Errorf("failed to generate csrf salt: %w", err)
	}

	issued := Issued{
		Token:      encode(salt) + "." + encode(sign(secret, salt)),
		HeaderName: cfg.HeaderName,
		CookieName: cfg.CookieName(),
		secret:     secret,
	}
	g.setSecretCookie(w, cfg, secret)
	return issued, nil
}

// Verify checks a state-changing request's token against the secret bound
// to the presenting session. Safe methods and exempt route prefixes skip
// verification entirely. On success the secret cookie is re-issued to
// extend its TTL.
func (g *Guard) Verify(w http.ResponseWriter, r *http.Request, sessionKey string) error {
	cfg := g.Config()

	if isSafeMethod(r.Method) || isExempt(cfg.ExemptPrefixes, r.URL.Path) {
		return nil
	}

	cookie, err := r.Cookie(cfg.CookieName())
	if err != nil || cookie.Value == "" {
		return types.NewCsrfInvalidError("missing session secret cookie")
	}
	cookieSecret, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return types.NewCsrfInvalidError("malformed session secret cookie")
	}

	stored, ok := g.store.Lookup(sessionKey)
	if !ok {
		return types.NewCsrfInvalidError("no anti-forgery secret for this session")
	}
	if !hmac.Equal(cookieSecret, stored) {
		return types.NewCsrfInvalidError("secret is not bound to this session")
	}

	token := g.tokenFromRequest(r, cfg)
	if token == "" {
		return types.NewCsrfInvalidError("missing anti-forgery token")
	}
	if !verifyToken(stored, token) {
		return types.NewCsrfInvalidError("anti-forgery token verification failed")
	}

	g.store.Refresh(sessionKey)
	g.setSecretCookie(w, cfg, stored)
	return nil
}

// Rotate invalidates the session's secret, for logout flows. Always safe
// to call.
func (g *Guard) Rotate(sessionKey string) {
	g.store.Rotate(sessionKey)
}

// Cleanup drops expired secrets.
func (g *Guard) Cleanup() int {
	return g.store.Cleanup()
}

// tokenFromRequest reads the token from the configured header, falling
// back to the form field for urlencoded bodies.
func (g *Guard) tokenFromRequest(r *http.Request, cfg config.CSRFConfig) string {
	if token := r.Header.Get(cfg.HeaderName); token != "" {
		return token
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.PostFormValue(cfg.FormField)
	}
	return ""
}

func (g *Guard) setSecretCookie(w http.ResponseWriter, cfg config.CSRFConfig, secret []byte) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName(),
		Value:    encode(secret),
		Path:     "/",
		MaxAge:   int(cfg.SecretTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// verifyToken recomputes the HMAC from the token's salt and compares in
// constant time.
func verifyToken(secret []byte, token string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return hmac.Equal(mac, sign(secret, salt))
}

func sign(secret, salt []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write(salt)
	return m.Sum(nil)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func isExempt(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
