package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return &App{
		DB:                 NewMemoryDB(),
		Codec:              newTestCodec(t),
		rateLimiter:        NewRateLimiter(),
		rateLimitPerMinute: 10000,
	}
}

func doJSON(t *testing.T, app *App, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// register creates a user through the API and returns the session token.
func register(t *testing.T, app *App, email string) string {
	t.Helper()
	rec := doJSON(t, app, "POST", "/api/auth/register", "", `{"Email":"`+email+`","Password":"Sup3rSecret"}`)
	require.Equal(t, 201, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad email", `{"Email":"nope","Password":"Sup3rSecret"}`},
		{"short password", `{"Email":"a@b.co","Password":"Ab1"}`},
		{"no uppercase", `{"Email":"a@b.co","Password":"lowercase1"}`},
		{"no digit", `{"Email":"a@b.co","Password":"NoDigitsHere"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, app, "POST", "/api/auth/register", "", tc.body)
			assert.Equal(t, 400, rec.Code)
		})
	}
}

func TestRegisterIssuesToken(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, "POST", "/api/auth/register", "", `{"Email":"Alice@Example.com","Password":"Sup3rSecret"}`)
	require.Equal(t, 201, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(900), body["expires_in"])

	// email is case-folded on storage
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["email"])

	// the issued token verifies as a session token with read:data only
	claims, err := app.Codec.Verify(body["access_token"].(string), PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:data"}, claims.Scopes())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "dup@example.com")

	rec := doJSON(t, app, "POST", "/api/auth/register", "", `{"Email":"dup@example.com","Password":"Sup3rSecret"}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "USER_EXISTS", decodeBody(t, rec)["error_code"])
}

func TestLoginResponsesDoNotLeakUserExistence(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "known@example.com")

	unknown := doJSON(t, app, "POST", "/api/auth/login", "", `{"Email":"ghost@example.com","Password":"Sup3rSecret"}`)
	wrongPwd := doJSON(t, app, "POST", "/api/auth/login", "", `{"Email":"known@example.com","Password":"WrongPassw0rd"}`)

	assert.Equal(t, 401, unknown.Code)
	assert.Equal(t, 401, wrongPwd.Code)
	assert.Equal(t, unknown.Body.String(), wrongPwd.Body.String())
}

func TestLoginScopesFollowProfileCompletion(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "scopes@example.com")

	login := func() *Claims {
		rec := doJSON(t, app, "POST", "/api/auth/login", "", `{"Email":"scopes@example.com","Password":"Sup3rSecret"}`)
		require.Equal(t, 200, rec.Code)
		claims, err := app.Codec.Verify(decodeBody(t, rec)["access_token"].(string), PurposeSession)
		require.NoError(t, err)
		return claims
	}

	assert.Equal(t, []string{"read:data"}, login().Scopes())

	rec := doJSON(t, app, "PUT", "/api/profile/complete", token, "")
	require.Equal(t, 200, rec.Code)

	assert.Equal(t, []string{"read:data", "read:bookings", "write:bookings"}, login().Scopes())
}

func TestSessionAuthRequired(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, "GET", "/api/tokens/mcp", "", "")
	assert.Equal(t, 401, rec.Code)

	rec = doJSON(t, app, "GET", "/api/tokens/mcp", "garbage.token.here", "")
	assert.Equal(t, 401, rec.Code)
}

func TestMCPTokenRejectedOnSessionEndpoint(t *testing.T) {
	app := newTestApp(t)
	mcpToken, _ := issueMCPToken(t, app, "confused@example.com")

	rec := doJSON(t, app, "GET", "/api/tokens/mcp", mcpToken, "")
	assert.Equal(t, 401, rec.Code)
}

// issueMCPToken registers a user, completes the profile and generates an
// MCP token with the full scope set. Returns the raw token and its id.
func issueMCPToken(t *testing.T, app *App, email string) (string, string) {
	t.Helper()
	session := register(t, app, email)
	rec := doJSON(t, app, "PUT", "/api/profile/complete", session, "")
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, app, "POST", "/api/tokens/generate", session,
		`{"name":"test token","scopes":["read:data","read:bookings","write:bookings"],"expires_in_days":30}`)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	tok := decodeBody(t, rec)["token"].(map[string]interface{})
	return tok["token"].(string), tok["id"].(string)
}

func TestGenerateRequiresCompleteProfile(t *testing.T) {
	app := newTestApp(t)
	session := register(t, app, "incomplete@example.com")

	rec := doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":"x"}`)
	assert.Equal(t, 403, rec.Code)
	assert.Equal(t, "PROFILE_INCOMPLETE", decodeBody(t, rec)["error_code"])
}

func TestGenerateValidation(t *testing.T) {
	app := newTestApp(t)
	session := register(t, app, "gen@example.com")
	rec := doJSON(t, app, "PUT", "/api/profile/complete", session, "")
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":""}`)
	assert.Equal(t, 400, rec.Code)

	rec = doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":"x","expires_in_days":9999}`)
	assert.Equal(t, 400, rec.Code)
}

func TestGenerateDefaults(t *testing.T) {
	app := newTestApp(t)
	session := register(t, app, "defaults@example.com")
	rec := doJSON(t, app, "PUT", "/api/profile/complete", session, "")
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":"just a name"}`)
	require.Equal(t, 201, rec.Code)

	tok := decodeBody(t, rec)["token"].(map[string]interface{})
	scopes := tok["scopes"].([]interface{})
	require.Len(t, scopes, 1)
	assert.Equal(t, "read:data", scopes[0])

	claims, err := app.Codec.Verify(tok["token"].(string), PurposeMCP)
	require.NoError(t, err)
	assert.Equal(t, "just a name", claims.Name)
}

func TestGenerateYieldsDistinctTokens(t *testing.T) {
	app := newTestApp(t)
	session := register(t, app, "twice@example.com")
	rec := doJSON(t, app, "PUT", "/api/profile/complete", session, "")
	require.Equal(t, 200, rec.Code)

	gen := func() (string, string) {
		rec := doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":"same name"}`)
		require.Equal(t, 201, rec.Code)
		tok := decodeBody(t, rec)["token"].(map[string]interface{})
		return tok["id"].(string), tok["token"].(string)
	}

	id1, raw1 := gen()
	id2, raw2 := gen()
	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, raw1, raw2)
}

func TestListOmitsRawToken(t *testing.T) {
	app := newTestApp(t)
	_, _ = issueMCPToken(t, app, "list@example.com")

	rec := doJSON(t, app, "POST", "/api/auth/login", "", `{"Email":"list@example.com","Password":"Sup3rSecret"}`)
	require.Equal(t, 200, rec.Code)
	session := decodeBody(t, rec)["access_token"].(string)

	rec = doJSON(t, app, "GET", "/api/tokens/mcp", session, "")
	require.Equal(t, 200, rec.Code)

	tokens := decodeBody(t, rec)["tokens"].([]interface{})
	require.Len(t, tokens, 1)
	entry := tokens[0].(map[string]interface{})
	assert.NotEmpty(t, entry["id"])
	assert.Equal(t, "test token", entry["name"])
	_, present := entry["token"]
	assert.False(t, present, "raw token must never be re-displayed")
}

func TestRevokeToken(t *testing.T) {
	app := newTestApp(t)
	raw, id := issueMCPToken(t, app, "revoke@example.com")

	rec := doJSON(t, app, "POST", "/api/auth/login", "", `{"Email":"revoke@example.com","Password":"Sup3rSecret"}`)
	session := decodeBody(t, rec)["access_token"].(string)

	// token works before revocation
	rec = doJSON(t, app, "POST", "/api/mcp/validate", raw, "")
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, app, "DELETE", "/api/tokens/mcp?id="+id, session, "")
	require.Equal(t, 200, rec.Code)

	// revoking twice is NOT_FOUND
	rec = doJSON(t, app, "DELETE", "/api/tokens/mcp?id="+id, session, "")
	assert.Equal(t, 404, rec.Code)

	// the JWT itself still verifies, but the pipeline rejects it: 401, not 403
	_, err := app.Codec.Verify(raw, PurposeMCP)
	require.NoError(t, err)
	rec = doJSON(t, app, "POST", "/api/mcp/validate", raw, "")
	assert.Equal(t, 401, rec.Code)
}

func TestRevokeRequiresOwnership(t *testing.T) {
	app := newTestApp(t)
	_, id := issueMCPToken(t, app, "owner@example.com")
	otherSession := register(t, app, "intruder@example.com")

	rec := doJSON(t, app, "DELETE", "/api/tokens/mcp?id="+id, otherSession, "")
	assert.Equal(t, 404, rec.Code)
}

func TestMCPValidate(t *testing.T) {
	app := newTestApp(t)
	raw, _ := issueMCPToken(t, app, "validate@example.com")

	rec := doJSON(t, app, "POST", "/api/mcp/validate", raw, "")
	require.Equal(t, 200, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "validate@example.com", body["user"].(map[string]interface{})["email"])
}

func TestMCPScopeEnforcement(t *testing.T) {
	app := newTestApp(t)
	session := register(t, app, "narrow@example.com")
	rec := doJSON(t, app, "PUT", "/api/profile/complete", session, "")
	require.Equal(t, 200, rec.Code)

	// token carrying read:data only
	rec = doJSON(t, app, "POST", "/api/tokens/generate", session, `{"name":"narrow","scopes":["read:data"]}`)
	require.Equal(t, 201, rec.Code)
	raw := decodeBody(t, rec)["token"].(map[string]interface{})["token"].(string)

	// read:data endpoint works
	rec = doJSON(t, app, "GET", "/api/mcp/hospitals", raw, "")
	assert.Equal(t, 200, rec.Code)

	// booking endpoints need scopes the token does not carry: 403, not 401
	rec = doJSON(t, app, "GET", "/api/mcp/appointments", raw, "")
	assert.Equal(t, 403, rec.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", decodeBody(t, rec)["error_code"])

	rec = doJSON(t, app, "POST", "/api/mcp/appointments", raw, `{"hospital_id":"h1","date":"2026-09-01","time":"10:00"}`)
	assert.Equal(t, 403, rec.Code)
}

func TestMCPBookingFlow(t *testing.T) {
	app := newTestApp(t)
	raw, _ := issueMCPToken(t, app, "booker@example.com")

	require.NoError(t, app.DB.CreateHospital(&Hospital{
		ID: "h1", Name: "General Hospital", City: "Paris", CreatedAt: time.Now(),
	}))

	rec := doJSON(t, app, "POST", "/api/mcp/appointments", raw,
		`{"hospital_id":"h1","description":"checkup","date":"2026-09-01","time":"10:00"}`)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	rec = doJSON(t, app, "POST", "/api/mcp/appointments", raw,
		`{"hospital_id":"missing","date":"2026-09-01","time":"10:00"}`)
	assert.Equal(t, 404, rec.Code)

	rec = doJSON(t, app, "GET", "/api/mcp/appointments", raw, "")
	require.Equal(t, 200, rec.Code)
	appts := decodeBody(t, rec)["appointments"].([]interface{})
	assert.Len(t, appts, 1)
}

func TestMCPAuthRequired(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, "GET", "/api/mcp/hospitals", "", "")
	assert.Equal(t, 401, rec.Code)

	// session token on an MCP endpoint is a purpose confusion: 401
	session := register(t, app, "wrongdomain@example.com")
	rec = doJSON(t, app, "GET", "/api/mcp/hospitals", session, "")
	assert.Equal(t, 401, rec.Code)
}

func TestExpiredRegistryRecordRejected(t *testing.T) {
	app := newTestApp(t)
	raw, _ := issueMCPToken(t, app, "expired-rec@example.com")

	// back-date the registry expiry; JWT exp is still in the future
	rec, err := app.DB.GetMCPTokenByValue(raw)
	require.NoError(t, err)
	rec.ExpiresAt = time.Now().Add(-time.Minute)
	_, err = app.DB.DeleteMCPTokenForUser(rec.ID, rec.UserID)
	require.NoError(t, err)
	require.NoError(t, app.DB.CreateMCPToken(rec))

	_, err = app.Codec.Verify(raw, PurposeMCP)
	require.NoError(t, err)

	resp := doJSON(t, app, "POST", "/api/mcp/validate", raw, "")
	assert.Equal(t, 401, resp.Code)
}

func TestLiveMCPToken(t *testing.T) {
	app := newTestApp(t)
	raw, id := issueMCPToken(t, app, "live@example.com")

	rec, err := app.LiveMCPToken(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	// liveness respects the registry expiry, not the JWT's
	_, err = app.LiveMCPToken(raw, time.Now().Add(31*24*time.Hour))
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// unknown raw value is indistinguishable from revoked
	_, err = app.LiveMCPToken("never-issued", time.Now())
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
