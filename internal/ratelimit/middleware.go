package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/httputil"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
)

// KeyFunc derives the limiter key from a request. The default keys by
// client IP.
type KeyFunc func(*http.Request) string

// Middleware enforces one tier of the bank in front of a handler.
type Middleware struct {
	bank       *Bank
	normalizer *respond.Normalizer
	logger     *logger.Logger
	keyFunc    KeyFunc
	skipPaths  map[string]bool
}

// NewMiddleware creates the limiter middleware. skipPaths are exact paths
// never counted (health checks, CSRF token issuance); keyFunc may be nil.
func NewMiddleware(bank *Bank, normalizer *respond.Normalizer, log *logger.Logger, skipPaths []string, keyFunc KeyFunc) *Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	if keyFunc == nil {
		keyFunc = httputil.ClientIP
	}
	return &Middleware{
		bank:       bank,
		normalizer: normalizer,
		logger:     log,
		keyFunc:    keyFunc,
		skipPaths:  skip,
	}
}

// Tier wraps next with the named tier's quota. The auth tier refunds hits
// for requests that complete with a status below 400, so only failed
// login attempts consume quota.
func (m *Middleware) Tier(tier string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := m.keyFunc(r)
			res, err := m.bank.Check(r.Context(), tier, key)
			if err != nil {
				// A counter-store outage must not take the API down with
				// it; let the request through and say so loudly.
				m.logger.WithError(err).Warn("Rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			setLimitHeaders(w, res)

			if !res.Allowed {
				m.logger.Security("rate_limit_exceeded", map[string]interface{}{
					"tier":      tier,
					"client_ip": key,
					"url":       r.URL.Path,
				})
				m.normalizer.Write(w, r, Deny(res))
				return
			}

			if tier != TierAuth {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if recorder.statusCode < 400 {
				if err := m.bank.Refund(r.Context(), tier, key); err != nil {
					m.logger.WithError(err).Warn("Rate limit refund failed")
				}
			}
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
