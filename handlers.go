package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type creds struct{ Email, Password string }

// tokenResponse is the OAuth2-style envelope returned by login and
// registration.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func sessionTokenResponse(token string) tokenResponse {
	return tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(SessionTokenTTL.Seconds()),
	}
}

// HandleRegister creates a credential record and immediately issues a
// session token in the same shape as login.
// POST /api/auth/register
func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if msg := validateEmail(c.Email); msg != "" {
		writeValidationError(w, "Validation error", "email: "+msg)
		return
	}
	if msg := validatePassword(c.Password); msg != "" {
		writeValidationError(w, "Validation error", "password: "+msg)
		return
	}

	hashed, err := hashPassword(c.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	user, err := a.DB.CreateUser(strings.ToLower(c.Email), hashed)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "USER_EXISTS", "A user with this email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user")
		return
	}

	access, err := a.Codec.SignSession(user.ID, user.Email, ScopesForUser(user))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Failed to sign token")
		return
	}
	resp := sessionTokenResponse(access)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user": map[string]interface{}{
			"id":         user.ID,
			"email":      user.Email,
			"created_at": user.CreatedAt,
		},
		"access_token": resp.AccessToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	})
}

// HandleLogin verifies credentials and issues a session token. The 401
// response is identical whether the email is unknown or the password wrong.
// POST /api/auth/login
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	user, err := a.VerifyCredentials(c.Email, c.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	access, err := a.Codec.SignSession(user.ID, user.Email, ScopesForUser(user))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Failed to sign token")
		return
	}
	resp := sessionTokenResponse(access)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
		"access_token": resp.AccessToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	})
}

// HandleCompleteProfile marks the caller's profile complete, which widens
// the scope set of tokens issued afterwards. Already-issued tokens keep the
// scopes they were issued with.
// PUT /api/profile/complete
func (a *App) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}
	if err := a.DB.CompleteProfile(userID, time.Now()); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"profile_completed": true})
}
