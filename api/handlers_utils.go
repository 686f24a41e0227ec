package api

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type errorResponse struct {
	Error string `json:"error"`
}

// setCacheStatusHeader sets the Cache-Status header based on cache status
func (s *Server) setCacheStatusHeader(w http.ResponseWriter, cacheStatus string) {
	if cacheStatus != "" {
		w.Header().Set("Cache-Status", cacheStatus)
	}
}

// sendJSONResponse writes data with status 200
func (s *Server) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	s.sendJSONStatus(w, http.StatusOK, data)
}

// sendJSONStatus is a common wrapper for JSON responses that sets Content-Type,
// Content-Length, ETag and client state headers
func (s *Server) sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	responseBytes, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}

	// ETag is the MD5 of the body
	hash := md5.Sum(responseBytes)
	etag := hex.EncodeToString(hash[:])

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(responseBytes)))
	w.Header().Set("ETag", "\""+etag+"\"")
	s.setStateHeaders(w)
	w.WriteHeader(status)

	if _, err := w.Write(responseBytes); err != nil {
		s.logger.WithError(err).Warn("Error writing response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, err error) {
	s.sendJSONStatus(w, status, errorResponse{Error: err.Error()})
}

// Stop gracefully shuts down the server
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Error("Error shutting down server")
		}
	}
}

// parsePage reads the page query parameter, 1 when absent
func parsePage(r *http.Request) (int, error) {
	if r == nil {
		return 1, nil
	}
	value := r.URL.Query().Get("page")
	if value == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(value)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive integer, got %q", value)
	}
	return page, nil
}

func retryAfter(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
