// Package handlers wires the HTTP surface: request decoding, the completion
// pipeline and the plugin-detection endpoint.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"chatgate-backend/internal/models"
)

const maxBodySize = 1 << 20

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("handlers: encode response: %v", err)
	}
}

func errorResp(code, message, requestID string) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResp(code, message, r.Header.Get("X-Request-ID")))
}
