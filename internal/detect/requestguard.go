package detect

import (
	"mime"
	"net/http"
	"strings"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// RequestGuard rejects requests whose shape is unacceptable before any
// expensive work happens: oversized bodies, disallowed content types,
// blocklisted user agents and tampered forwarding headers. Its checks
// overlap with the pattern scanner's but it is the one that blocks.
type RequestGuard struct {
	cfg        config.RequestGuardConfig
	normalizer *respond.Normalizer
	logger     *logger.Logger
}

// NewRequestGuard creates the request-validation guard.
func NewRequestGuard(cfg config.RequestGuardConfig, normalizer *respond.Normalizer, log *logger.Logger) *RequestGuard {
	return &RequestGuard{cfg: cfg, normalizer: normalizer, logger: log}
}

// Middleware applies the request-shape checks and short-circuits on the
// first failure.
func (g *RequestGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.check(r); err != nil {
			g.logger.Security("request_blocked", map[string]interface{}{
				"client_ip":  r.RemoteAddr,
				"url":        r.URL.Path,
				"user_agent": r.UserAgent(),
				"reason":     err.Code,
			})
			g.normalizer.Write(w, r, err)
			return
		}

		// Cap the body for downstream readers regardless of the declared
		// Content-Length.
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes)
		}

		next.ServeHTTP(w, r)
	})
}

func (g *RequestGuard) check(r *http.Request) *types.PipelineError {
	ua := strings.ToLower(r.UserAgent())
	for _, blocked := range g.cfg.BlockedUserAgents {
		if blocked != "" && strings.Contains(ua, strings.ToLower(blocked)) {
			return types.NewBlockedClientError("client is not permitted")
		}
	}

	if err := checkForwardingHeaders(r); err != nil {
		return err
	}

	if r.ContentLength > g.cfg.MaxBodyBytes {
		return types.NewPayloadTooLargeError(g.cfg.MaxBodyBytes)
	}

	if hasBody(r) {
		ct := r.Header.Get("Content-Type")
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return types.NewUnsupportedMediaTypeError(ct)
		}
		if !g.contentTypeAllowed(mediaType) {
			return types.NewUnsupportedMediaTypeError(mediaType)
		}
	}

	return nil
}

// checkForwardingHeaders flags requests presenting contradictory proxy
// headers, a common fingerprint of header spoofing.
func checkForwardingHeaders(r *http.Request) *types.PipelineError {
	xff := r.Header.Get("X-Forwarded-For")
	xri := r.Header.Get("X-Real-IP")
	if xff == "" || xri == "" {
		return nil
	}
	first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	if first != strings.TrimSpace(xri) {
		return types.NewBlockedClientError("mismatched forwarding headers")
	}
	return nil
}

func (g *RequestGuard) contentTypeAllowed(mediaType string) bool {
	for _, allowed := range g.cfg.AllowedContentTypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	default:
		return false
	}
}
