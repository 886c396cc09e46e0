package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Authenticator sets the Authorization header of a gateway request.
type Authenticator interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// BasicAuth sends a static "secret:company" pair as a basic-auth header.
type BasicAuth struct {
	SecretKey string
	CompanyID string
}

func (b *BasicAuth) Authorize(_ context.Context, req *http.Request) error {
	if b.SecretKey == "" || b.CompanyID == "" {
		return ErrCredentialsMissing
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(b.SecretKey + ":" + b.CompanyID))
	req.Header.Set("Authorization", "Basic "+credentials)
	return nil
}

// ClientCredentials exchanges a client id/secret for a bearer token on every
// call. Tokens are never cached between requests.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Client       *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (c *ClientCredentials) Authorize(ctx context.Context, req *http.Request) error {
	if c.ClientID == "" || c.ClientSecret == "" || c.TokenURL == "" {
		return ErrCredentialsMissing
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	tokenReq.SetBasicAuth(c.ClientID, c.ClientSecret)
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenReq.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(tokenReq)
	if err != nil {
		return fmt.Errorf("%w: token request: %s", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: token endpoint answered %d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("%w: failed to decode token response: %s", ErrMalformedResponse, err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("%w: token response without access_token", ErrAuthFailed)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}
