package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// Sentinel errors for the auth core. Handlers map these onto HTTP statuses;
// the token errors all collapse to a uniform 401 body so callers cannot
// distinguish why a token was rejected.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrIssuerMismatch      = errors.New("token issuer mismatch")
	ErrAudienceMismatch    = errors.New("token audience mismatch")
	ErrTokenRevoked        = errors.New("token revoked or unknown")
	ErrDuplicateToken      = errors.New("token already recorded")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrUpstreamUnavailable = errors.New("mcp token issuer unavailable")
)

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeValidationError includes field-level detail; validation failures are
// not security-sensitive.
func writeValidationError(w http.ResponseWriter, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: details,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
