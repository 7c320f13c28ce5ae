package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx answer that carries no result.
type ErrorResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// WriteJSONResponse writes data as JSON with the given status code
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// WriteError writes a result-shaped error body
func WriteError(w http.ResponseWriter, statusCode int, reason string) {
	WriteJSONResponse(w, statusCode, ErrorResponse{Valid: false, Reason: reason, Code: statusCode})
}
