package main

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
)

// JWK is the JSON Web Key form of the RS256 public key.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
}

// JWKS is the published key-set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewJWKS converts the public key to a key-set document with the fixed
// metadata third-party verifiers expect.
func NewJWKS(pub *rsa.PublicKey) JWKS {
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		Kid: KeyID,
		Use: "sig",
		Alg: "RS256",
	}}}
}

// HandleJWKS serves the public key set. Unauthenticated and side-effect
// free; it exposes only public material.
// GET /.well-known/jwks.json
func (a *App) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	if a.Codec == nil || a.Codec.publicKey == nil {
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Public key not configured")
		return
	}
	writeJSON(w, http.StatusOK, NewJWKS(a.Codec.publicKey))
}
