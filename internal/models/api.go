// Package models defines API response envelopes.
package models

// APIResponse is the JSON envelope for error and status replies.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Error builds an error envelope.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}

// Success builds a success envelope.
func Success(message string) APIResponse {
	return APIResponse{Status: "ok", Message: message}
}
