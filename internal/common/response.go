package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload every error response wraps under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v with the given status. The body is marshalled before the
// status line goes out so an encoding failure can still become a 500.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL","message":"response encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError renders the canonical error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	envelope := map[string]ErrorBody{
		"error": {Code: code, Message: message, Details: details},
	}
	JSON(w, status, envelope)
}
