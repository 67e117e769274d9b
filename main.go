package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/hospiai-auth/internal/config"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"
)

type App struct {
	DB       DB
	Codec    *TokenCodec
	Upstream *UpstreamIssuer // nil when tokens are signed locally

	rateLimiter        *RateLimiter
	rateLimitPerMinute int
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func main() {
	_ = godotenv.Load()

	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Key material is loaded once; a failure here is fatal rather than a
	// per-request surprise.
	privateKey, err := LoadPrivateKey(c)
	if err != nil {
		log.Fatalf("key material: %v", err)
	}
	publicKey, err := LoadPublicKey(c)
	if err != nil {
		log.Fatalf("key material: %v", err)
	}
	codec := NewTokenCodec(privateKey, publicKey, []byte(c.MCPSecret), c.Issuer, c.Audience)
	if c.MCPSecret == "" {
		log.Println("MCP_JWT_SECRET not set; MCP token endpoints will refuse to serve")
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", c.PostgresDSN); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		p, err := NewPostgresDB(c.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := &App{
		DB:                 db,
		Codec:              codec,
		rateLimiter:        NewRateLimiter(),
		rateLimitPerMinute: c.RateLimitPerMinute,
	}
	if c.MCPServerURL != "" {
		app.Upstream = NewUpstreamIssuer(c.MCPServerURL, c.MCPServerTimeout)
		log.Printf("Delegating MCP token issuance to %s", c.MCPServerURL)
	}

	r := app.Router()

	srv := &http.Server{Handler: r, Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		log.Println("Starting auth server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	log.Println("Server exited properly")
}

// Router wires middleware and routes. Split out of main so handler tests
// can run against the full stack.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Public key discovery; unauthenticated
	r.HandleFunc("/.well-known/jwks.json", a.HandleJWKS).Methods("GET")

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Credential endpoints: rate limited, unauthenticated
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.Use(a.RateLimit)
	auth.HandleFunc("/register", a.HandleRegister).Methods("POST")
	auth.HandleFunc("/login", a.HandleLogin).Methods("POST")

	// Session-token protected endpoints (RS256, stateless)
	tokens := r.PathPrefix("/api/tokens").Subrouter()
	tokens.Use(a.SessionAuth)
	tokens.HandleFunc("/generate", a.HandleGenerateMCPToken).Methods("POST")
	tokens.HandleFunc("/mcp", a.HandleListMCPTokens).Methods("GET")
	tokens.HandleFunc("/mcp", a.HandleRevokeMCPToken).Methods("DELETE")

	profile := r.PathPrefix("/api/profile").Subrouter()
	profile.Use(a.SessionAuth)
	profile.HandleFunc("/complete", a.HandleCompleteProfile).Methods("PUT")

	// MCP-token protected endpoints (HS256 + registry liveness + scope)
	mcp := r.PathPrefix("/api/mcp").Subrouter()
	mcp.Use(a.MCPAuth)
	mcp.HandleFunc("/validate", a.HandleMCPValidate).Methods("POST")
	mcp.HandleFunc("/hospitals", requireScope(ScopeReadData, a.HandleListHospitals)).Methods("GET")
	mcp.HandleFunc("/appointments", requireScope(ScopeReadBookings, a.HandleListAppointments)).Methods("GET")
	mcp.HandleFunc("/appointments", requireScope(ScopeWriteBookings, a.HandleCreateAppointment)).Methods("POST")

	return r
}
