package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	LogLevel   string

	// RS256 key material for session tokens. Env values take precedence
	// over the PEM files; escaped "\n" sequences in env values are
	// unescaped before parsing.
	JWTPrivateKey  string
	JWTPublicKey   string
	PrivateKeyFile string
	PublicKeyFile  string

	// HS256 shared secret for MCP integration tokens.
	MCPSecret string

	Issuer   string
	Audience string

	// Optional external MCP token issuer. Empty means tokens are signed
	// locally with MCPSecret.
	MCPServerURL     string
	MCPServerTimeout time.Duration

	RateLimitPerMinute int

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	timeoutSec, err := strconv.Atoi(getenv("MCP_SERVER_TIMEOUT", "10"))
	if err != nil || timeoutSec <= 0 {
		return nil, errors.New("invalid MCP_SERVER_TIMEOUT")
	}

	ratePerMin, err := strconv.Atoi(getenv("RATE_LIMIT_PER_MINUTE", "60"))
	if err != nil || ratePerMin <= 0 {
		return nil, errors.New("invalid RATE_LIMIT_PER_MINUTE")
	}

	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/hospiai_auth.db"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		JWTPrivateKey:  os.Getenv("JWT_PRIVATE_KEY"),
		JWTPublicKey:   os.Getenv("JWT_PUBLIC_KEY"),
		PrivateKeyFile: getenv("JWT_PRIVATE_KEY_FILE", "private.pem"),
		PublicKeyFile:  getenv("JWT_PUBLIC_KEY_FILE", "public.pem"),

		MCPSecret: os.Getenv("MCP_JWT_SECRET"),

		Issuer:   getenv("AUTH_JWT_ISSUER", "hospiai-api"),
		Audience: getenv("AUTH_JWT_AUDIENCE", "hospiai-mcp"),

		MCPServerURL:     os.Getenv("MCP_SERVER_URL"),
		MCPServerTimeout: time.Duration(timeoutSec) * time.Second,

		RateLimitPerMinute: ratePerMin,

		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "hospiai")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "hospiai")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "hospiai_auth")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	// MCP tokens cannot be issued without a shared secret in production.
	env := strings.ToLower(getenv("NODE_ENV", getenv("ENV", "")))
	if env == "production" || env == "prod" {
		if c.MCPSecret == "" {
			return nil, errors.New("MCP_JWT_SECRET must be set in production")
		}
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
