package limitkit

import (
	"encoding/json"
	"net/http"
)

// APIError is the structured error body written by the middleware and the
// administrative handler. No internal storage details are ever included.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	// RetryAfter, Limit, and Window describe the exceeded policy on 429s.
	RetryAfter int `json:"retry_after,omitempty"`
	Limit      int `json:"limit,omitempty"`
	Window     int `json:"window,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Data: data})
}

func writeError(w http.ResponseWriter, status int, apiErr *APIError) {
	writeJSON(w, status, errorResponse{Error: apiErr})
}
