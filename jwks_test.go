package main

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWKS(t *testing.T) {
	c := newTestCodec(t)

	doc := NewJWKS(c.publicKey)
	require.Len(t, doc.Keys, 1)

	k := doc.Keys[0]
	assert.Equal(t, "RSA", k.Kty)
	assert.Equal(t, "main-key", k.Kid)
	assert.Equal(t, "sig", k.Use)
	assert.Equal(t, "RS256", k.Alg)

	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	require.NoError(t, err)
	assert.Equal(t, 0, c.publicKey.N.Cmp(new(big.Int).SetBytes(nBytes)))

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	require.NoError(t, err)
	assert.Equal(t, int64(c.publicKey.E), new(big.Int).SetBytes(eBytes).Int64())
}

func TestHandleJWKS(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var doc JWKS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "main-key", doc.Keys[0].Kid)
	assert.NotEmpty(t, doc.Keys[0].N)
	assert.NotEmpty(t, doc.Keys[0].E)
}

func TestHandleJWKSMissingKey(t *testing.T) {
	app := newTestApp(t)
	app.Codec.publicKey = nil

	req := httptest.NewRequest("GET", "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, 500, rec.Code)
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "CONFIGURATION_ERROR", e.Code)
}
