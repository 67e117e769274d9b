package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTokenDays = 90
	maxTokenDays     = 365
	maxTokenNameLen  = 100
)

// HandleGenerateMCPToken issues an MCP integration token for the session
// user and records it in the registry. The raw token appears in this
// response and never again.
// POST /api/tokens/generate
func (a *App) HandleGenerateMCPToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	// Re-read the user: profile completion may have changed since the
	// session token was issued.
	user, err := a.DB.GetUserByID(userID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if user.ProfileCompletedAt == nil {
		writeError(w, http.StatusForbidden, "PROFILE_INCOMPLETE", "Complete your profile before generating tokens")
		return
	}

	var req struct {
		Name          string   `json:"name"`
		Scopes        []string `json:"scopes"`
		ExpiresInDays int      `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Name == "" || len(req.Name) > maxTokenNameLen {
		writeValidationError(w, "Validation error", "name: must be 1-100 characters")
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{ScopeReadData}
	}
	if req.ExpiresInDays == 0 {
		req.ExpiresInDays = defaultTokenDays
	}
	if req.ExpiresInDays < 1 || req.ExpiresInDays > maxTokenDays {
		writeValidationError(w, "Validation error", "expires_in_days: must be between 1 and 365")
		return
	}

	ttl := time.Duration(req.ExpiresInDays) * 24 * time.Hour

	var token string
	if a.Upstream != nil {
		token, err = a.Upstream.Issue(r.Context(), upstreamTokenRequest{
			UserID:        user.ID,
			Email:         user.Email,
			Name:          req.Name,
			Scopes:        req.Scopes,
			ExpiresInDays: req.ExpiresInDays,
		})
	} else {
		token, err = a.Codec.SignMCP(user.ID, user.Email, req.Name, req.Scopes, ttl)
	}
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Token issuer unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Failed to sign token")
		return
	}

	now := time.Now()
	rec := &MCPToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		Name:      req.Name,
		Scopes:    req.Scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.DB.CreateMCPToken(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": map[string]interface{}{
			"id":         rec.ID,
			"token":      rec.Token, // returned only here
			"name":       rec.Name,
			"scopes":     rec.Scopes,
			"created_at": rec.CreatedAt,
			"expires_at": rec.ExpiresAt,
		},
	})
}

// HandleListMCPTokens lists the caller's token records. The raw token value
// is never included.
// GET /api/tokens/mcp
func (a *App) HandleListMCPTokens(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	records, err := a.DB.ListMCPTokensByUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tokens")
		return
	}

	out := make([]map[string]interface{}, 0, len(records))
	for _, t := range records {
		out = append(out, map[string]interface{}{
			"id":         t.ID,
			"name":       t.Name,
			"scopes":     t.Scopes,
			"created_at": t.CreatedAt,
			"expires_at": t.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": out})
}

// HandleRevokeMCPToken hard-deletes a token record owned by the caller.
// Deletion alone invalidates the token before its embedded expiry.
// DELETE /api/tokens/mcp?id=...
func (a *App) HandleRevokeMCPToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token ID is required")
		return
	}

	n, err := a.DB.DeleteMCPTokenForUser(id, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke token")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Token not found")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"revoked": true})
}
