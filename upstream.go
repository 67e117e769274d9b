package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// UpstreamIssuer delegates MCP token signing to an external issuer. The
// call is time-bounded; on failure no registry record may be written.
type UpstreamIssuer struct {
	baseURL string
	client  *http.Client
}

func NewUpstreamIssuer(baseURL string, timeout time.Duration) *UpstreamIssuer {
	return &UpstreamIssuer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type upstreamTokenRequest struct {
	UserID        int64    `json:"user_id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays int      `json:"expires_in_days"`
}

type upstreamTokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Issue requests a signed token from the upstream issuer.
func (u *UpstreamIssuer) Issue(ctx context.Context, req upstreamTokenRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/tokens/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out upstreamTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: bad response: %v", ErrUpstreamUnavailable, err)
	}
	// issuers differ on the field name
	token := out.Token
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrUpstreamUnavailable)
	}
	return token, nil
}
