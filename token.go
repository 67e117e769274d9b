package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose selects which trust domain a token belongs to. The algorithm and
// key are bound to the purpose, never chosen by the caller, so a verifier
// for one purpose can never accept a token signed for the other.
type Purpose int

const (
	// PurposeSession is the RS256 user-session token scheme. Stateless:
	// the signature and embedded expiry are the sole authority.
	PurposeSession Purpose = iota
	// PurposeMCP is the HS256 integration token scheme backed by the
	// revocation registry.
	PurposeMCP
)

// KeyID is embedded in every token header and published in the JWKS.
const KeyID = "main-key"

// SessionTokenTTL is the fixed lifetime of user-session tokens.
const SessionTokenTTL = 15 * time.Minute

// Claims are the assertions carried by a signed token. Scopes travel as a
// single space-joined "scope" claim.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Scope string `json:"scope"`
	Name  string `json:"name,omitempty"`
}

// Scopes splits the space-joined scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	return id, nil
}

// TokenCodec signs and verifies compact tokens for both purposes. Key
// material is loaded once at startup and read-only thereafter.
type TokenCodec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	mcpSecret  []byte
	issuer     string
	audience   string
}

func NewTokenCodec(priv *rsa.PrivateKey, pub *rsa.PublicKey, mcpSecret []byte, issuer, audience string) *TokenCodec {
	return &TokenCodec{
		privateKey: priv,
		publicKey:  pub,
		mcpSecret:  mcpSecret,
		issuer:     issuer,
		audience:   audience,
	}
}

func (c *TokenCodec) newClaims(userID int64, email string, scopes []string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jti makes every signed token distinct even within the
			// one-second iat granularity; the registry's unique
			// constraint on the raw value depends on it.
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Scope: strings.Join(scopes, " "),
	}
}

// SignSession issues an RS256 session token with the fixed 15 minute
// lifetime.
func (c *TokenCodec) SignSession(userID int64, email string, scopes []string) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("%w: no RS256 private key", ErrKeyNotFound)
	}
	claims := c.newClaims(userID, email, scopes, SessionTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID
	return token.SignedString(c.privateKey)
}

// SignMCP issues an HS256 integration token. The lifetime is caller
// specified (1-365 days, validated at the handler).
func (c *TokenCodec) SignMCP(userID int64, email, name string, scopes []string, ttl time.Duration) (string, error) {
	if len(c.mcpSecret) == 0 {
		return "", fmt.Errorf("%w: MCP_JWT_SECRET not set", ErrKeyNotFound)
	}
	claims := c.newClaims(userID, email, scopes, ttl)
	claims.Name = name
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = KeyID
	return token.SignedString(c.mcpSecret)
}

// Verify checks signature, algorithm, issuer, audience and expiry in one
// step. It does NOT consult the revocation registry; that is a separate,
// explicit check the caller performs for MCP tokens.
func (c *TokenCodec) Verify(tokenStr string, purpose Purpose) (*Claims, error) {
	var alg string
	var key interface{}
	switch purpose {
	case PurposeSession:
		if c.publicKey == nil {
			return nil, fmt.Errorf("%w: no RS256 public key", ErrKeyNotFound)
		}
		alg = jwt.SigningMethodRS256.Alg()
		key = c.publicKey
	case PurposeMCP:
		if len(c.mcpSecret) == 0 {
			return nil, fmt.Errorf("%w: MCP_JWT_SECRET not set", ErrKeyNotFound)
		}
		alg = jwt.SigningMethodHS256.Alg()
		key = c.mcpSecret
	default:
		return nil, fmt.Errorf("unknown token purpose %d", purpose)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != alg {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	default:
		return ErrTokenMalformed
	}
}
