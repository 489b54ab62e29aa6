// Package response writes JSON API responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorBody is the shape of every error response
type ErrorBody struct {
	Detail interface{} `json:"detail"`
}

// JSON writes v with the given status code
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// Error writes {"detail": detail}. detail is usually a string but may be a
// list of validation problems.
func Error(w http.ResponseWriter, status int, detail interface{}) {
	JSON(w, status, ErrorBody{Detail: detail})
}
