package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr answers with the status matching err's kind. Server-side
// failures are logged and reported with a generic message.
func respondErr(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error().Err(err).Str("op", op).Msg("Request failed")
		httpError(w, status, "internal error")
		return
	}
	log.Debug().Err(err).Str("op", op).Int("status", status).Msg("Request rejected")
	httpError(w, status, err.Error())
}

// requireMethod writes 405 and returns false when r does not use method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
