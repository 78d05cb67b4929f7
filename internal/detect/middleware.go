package detect

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/httputil"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
)

// bodySniffLimit caps how much of the body is buffered for scanning. The
// request-validation guard enforces the real payload limit.
const bodySniffLimit = 64 << 10

// Scanner is the observational suspicious-pattern middleware. It logs
// matches and always passes the request through.
type Scanner struct {
	logger *logger.Logger
}

// NewScanner creates the suspicious-pattern middleware.
func NewScanner(log *logger.Logger) *Scanner {
	return &Scanner{logger: log}
}

// Middleware scans query, body and headers and logs any findings. It never
// rejects a request.
func (s *Scanner) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := s.sniffBody(r)

		findings := Scan(r.URL.Query(), body, r.Header)
		for _, f := range findings {
			s.logger.Security("suspicious_pattern", map[string]interface{}{
				"client_ip": httputil.ClientIP(r),
				"url":       r.URL.String(),
				"pattern":   f.Pattern,
				"source":    f.Source,
				"path":      f.Path,
				"excerpt":   f.Excerpt,
			})
		}

		next.ServeHTTP(w, r)
	})
}

// sniffBody peeks at a JSON body without consuming it for downstream
// handlers. Bodies that fail to parse are skipped silently.
func (s *Scanner) sniffBody(r *http.Request) interface{} {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return nil
	}

	peek, err := io.ReadAll(io.LimitReader(r.Body, bodySniffLimit))
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(peek))
		return nil
	}

	// Stitch the buffered prefix back onto whatever remains unread.
	rest := r.Body
	r.Body = &restoredBody{
		Reader: io.MultiReader(bytes.NewReader(peek), rest),
		closer: rest,
	}

	var parsed interface{}
	if err := json.Unmarshal(peek, &parsed); err != nil {
		return nil
	}
	return parsed
}

type restoredBody struct {
	io.Reader
	closer io.Closer
}

func (b *restoredBody) Close() error {
	return b.closer.Close()
}
