package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type contextKey int

const (
	claimsKey contextKey = iota
	mcpRecordKey
)

func claimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func mcpRecordFromContext(ctx context.Context) *MCPToken {
	t, _ := ctx.Value(mcpRecordKey).(*MCPToken)
	return t
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeTokenError maps verification failures onto responses. All token
// defects collapse to one 401 body; only missing configuration surfaces
// differently (500).
func writeTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrKeyNotFound) {
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Token verification is not configured")
		return
	}
	writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
}

// SessionAuth verifies an RS256 session bearer token. Session tokens are
// stateless; no registry lookup happens here.
func (a *App) SessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			return
		}
		claims, err := a.Codec.Verify(token, PurposeSession)
		if err != nil {
			writeTokenError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LiveMCPToken returns the registry record authorizing raw, or
// ErrTokenRevoked. Absent, deleted and expired records are deliberately
// indistinguishable.
func (a *App) LiveMCPToken(raw string, now time.Time) (*MCPToken, error) {
	rec, err := a.DB.GetMCPTokenByValue(raw)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Live(now) {
		return nil, ErrTokenRevoked
	}
	return rec, nil
}

// MCPAuth runs the full MCP pipeline: HS256 verification, then registry
// liveness. Scope checks are per-endpoint via requireScope.
func (a *App) MCPAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			return
		}
		claims, err := a.Codec.Verify(token, PurposeMCP)
		if err != nil {
			writeTokenError(w, err)
			return
		}
		rec, err := a.LiveMCPToken(token, time.Now())
		if err != nil {
			if errors.Is(err, ErrTokenRevoked) {
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			} else {
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Token lookup failed")
			}
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, mcpRecordKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope gates a handler on one scope from the verified claims.
// Authorization runs only after authentication succeeded, so a missing
// scope is 403, never 401.
func requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			return
		}
		if !HasScope(claims.Scopes(), scope) {
			writeError(w, http.StatusForbidden, "INSUFFICIENT_SCOPE", "Missing required scope: "+scope)
			return
		}
		next(w, r)
	}
}

// RateLimiter implements per-client rate limiting
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) getLimiter(key string, limitPerMinute int) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(limitPerMinute)/60, limitPerMinute)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit middleware enforces per-client limits on credential endpoints
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := a.rateLimiter.getLimiter(clientIP(r), a.rateLimitPerMinute)
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Printf("[%s] %s %s %d %v", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// CORS middleware handles CORS headers
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
