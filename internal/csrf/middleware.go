package csrf

import (
	"net/http"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/auth"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/httputil"
	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/respond"
)

// SessionKey derives the key the secret store is partitioned by: the
// authenticated principal id when present, otherwise an anonymous key
// from the client IP.
func SessionKey(r *http.Request) string {
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		return principal.Subject
	}
	return "anon:" + httputil.ClientIP(r)
}

// Middleware verifies state-changing requests and short-circuits with
// CsrfInvalid failures. It must run after the authentication gate so the
// session key can prefer the principal id.
func Middleware(guard *Guard, normalizer *respond.Normalizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := guard.Verify(w, r, SessionKey(r)); err != nil {
				normalizer.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
