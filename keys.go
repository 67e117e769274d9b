package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	cfg "github.com/example/hospiai-auth/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// ErrKeyNotFound means no usable key material was configured. It is fatal:
// the process must never fall back to an unsigned or default key.
var ErrKeyNotFound = errors.New("key material not found")

// resolvePEM returns PEM bytes for one key, preferring the environment value
// over the file. Environment values carry escaped "\n" sequences (single-line
// deployment secrets), which are unescaped before use. The decoded material
// must contain the expected BEGIN marker.
func resolvePEM(envValue, file, marker string) ([]byte, error) {
	if envValue != "" {
		pem := strings.ReplaceAll(envValue, `\n`, "\n")
		if !strings.Contains(pem, marker) {
			return nil, fmt.Errorf("key material missing %q marker", marker)
		}
		return []byte(pem), nil
	}

	b, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: set env var or provide %s", ErrKeyNotFound, file)
		}
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	if !strings.Contains(string(b), marker) {
		return nil, fmt.Errorf("%s missing %q marker", file, marker)
	}
	return b, nil
}

// LoadPrivateKey resolves the RS256 signing key from JWT_PRIVATE_KEY or the
// configured PEM file.
func LoadPrivateKey(c *cfg.Config) (*rsa.PrivateKey, error) {
	pem, err := resolvePEM(c.JWTPrivateKey, c.PrivateKeyFile, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

// LoadPublicKey resolves the RS256 verification key from JWT_PUBLIC_KEY or
// the configured PEM file.
func LoadPublicKey(c *cfg.Config) (*rsa.PublicKey, error) {
	pem, err := resolvePEM(c.JWTPublicKey, c.PublicKeyFile, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return key, nil
}
