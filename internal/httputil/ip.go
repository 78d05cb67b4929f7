// Package httputil holds small request helpers shared across guards.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the caller's address, preferring forwarding headers
// set by the edge proxy over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may be comma-separated: the leftmost entry is
		// the originating client.
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
