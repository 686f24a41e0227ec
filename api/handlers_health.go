package api

import (
	"net/http"
)

// handleHealth responds with 200 OK to indicate the service is running
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string, len(s.health))
	for name, checker := range s.health {
		services[name] = "down"
		if checker.Healthy() {
			services[name] = "up"
		}
	}

	s.sendJSONResponse(w, map[string]interface{}{
		"status":   "ok",
		"services": services,
	})
}
