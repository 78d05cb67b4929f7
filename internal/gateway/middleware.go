package gateway

import (
	"net/http"
	"time"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/httputil"
)

// securityHeadersMiddleware adds security headers
func (s *Service) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and records metrics
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		s.metrics.RecordRequest(r.Method, r.URL.Path, recorder.statusCode, duration)
		s.logger.HTTPRequest(r.Method, r.URL.Path, r.UserAgent(), httputil.ClientIP(r), recorder.statusCode, duration.Milliseconds())
	})
}

// authDispatchMiddleware runs the authentication gate on every request:
// public paths use the optional variant so the principal is populated
// when a credential is present but the request proceeds either way.
func (s *Service) authDispatchMiddleware(next http.Handler) http.Handler {
	required := s.gate.Middleware(next)
	optional := s.gate.OptionalMiddleware(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isPublicPath(r.URL.Path) {
			optional.ServeHTTP(w, r)
			return
		}
		required.ServeHTTP(w, r)
	})
}

// responseRecorder captures response status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
