// Package handlers holds the HTTP layer. Handlers decode and validate
// requests, call services and translate domain errors through httperr.
// No business rules live here.
package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wizspeak/server/internal/httperr"
)

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// urlParamInt reads a chi URL parameter as an int, returning false after
// writing a validation error when it is not a number.
func urlParamInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		httperr.Validation(w, "invalid "+name)
		return 0, false
	}
	return v, true
}

// urlParamToken reads the share token parameter, writing a validation
// error and returning "" when absent.
func urlParamToken(w http.ResponseWriter, r *http.Request) string {
	token := chi.URLParam(r, "token")
	if token == "" {
		httperr.Validation(w, "share token is required")
	}
	return token
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
