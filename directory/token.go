package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/teranos/offramp/errors"
)

// TokenSource exchanges tenant credentials for a bearer token using the
// OAuth2 client-credentials grant. Single attempt, no retry: a rejection
// here aborts the whole record's execution.
type TokenSource struct {
	authority string // e.g. https://login.microsoftonline.com
	scope     string
	http      *http.Client
}

// NewTokenSource creates a token source against the identity provider.
func NewTokenSource(authority, scope string, httpClient *http.Client) *TokenSource {
	return &TokenSource{
		authority: strings.TrimRight(authority, "/"),
		scope:     scope,
		http:      httpClient,
	}
}

// Token performs one client-credentials exchange for the given tenant.
// Returns *AuthError when the secret is absent or the provider rejects the
// exchange, surfacing the provider's error description when present.
func (ts *TokenSource) Token(ctx context.Context, clientID, tenantID, clientSecret string) (string, error) {
	if clientSecret == "" {
		return "", &AuthError{
			Code:        "missing_client_secret",
			Description: fmt.Sprintf("no client secret available for tenant %s", tenantID),
		}
	}

	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {ts.scope},
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", ts.authority, tenantID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "failed to create token request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read token response")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}

	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", errors.Wrapf(err, "failed to parse token response (status %d)", resp.StatusCode)
	}

	if tokenResp.Error != "" {
		return "", &AuthError{Code: tokenResp.Error, Description: tokenResp.ErrorDesc}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{
			Code:        "token_endpoint_error",
			Description: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if tokenResp.AccessToken == "" {
		return "", &AuthError{Code: "empty_token", Description: "no access token in response"}
	}

	return tokenResp.AccessToken, nil
}
