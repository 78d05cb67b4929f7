package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adr1el-m/carmen-the-parasight-sub007/internal/csrf"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// handleHealth handles health check requests
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCSRFToken issues an anti-forgery token bound to the caller's
// session key and sets the session secret cookie.
func (s *Service) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	issued, err := s.csrfGuard.IssueToken(w, csrf.SessionKey(r))
	if err != nil {
		s.normalizer.Write(w, r, types.NewInternalError("failed to issue csrf token", err))
		return
	}
	s.writeJSONResponse(w, http.StatusOK, issued)
}

// handleLogout invalidates the caller's anti-forgery secret. Rotation is
// safe even when no secret exists, so the endpoint never fails.
func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionKey := csrf.SessionKey(r)
	s.csrfGuard.Rotate(sessionKey)

	s.writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// writeJSONResponse writes a JSON response with the given status code
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
