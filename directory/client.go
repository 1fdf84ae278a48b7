// Package directory is the client for the external identity-directory REST
// API (Microsoft Graph shape): user lookup and disable, sign-in session
// revocation, and group membership enumeration/removal.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/offramp/errors"
)

// Target identifies a directory user. Any single identifier may be the only
// one available on a lifecycle record.
type Target struct {
	ObjectID      string
	PrincipalName string
	Email         string
	DisplayName   string
}

// Ref returns the best available user reference for path-addressable calls
// (object id preferred, then principal name, then email).
func (t Target) Ref() string {
	if t.ObjectID != "" {
		return t.ObjectID
	}
	if t.PrincipalName != "" {
		return t.PrincipalName
	}
	return t.Email
}

// Describe returns a human-readable label for logs and outcome messages.
func (t Target) Describe() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Ref()
}

// Group is a directory group the user is a member of.
type Group struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Client calls the directory REST API with a bearer token. Outbound calls are
// rate-limited to avoid per-tenant throttling from the provider.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient creates a directory API client.
// requestsPerSecond caps outbound call rate; <= 0 disables the limiter.
func NewClient(baseURL string, httpClient *http.Client, requestsPerSecond float64, logger *zap.SugaredLogger) *Client {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// DisableUser disables the user's account (PATCH accountEnabled=false).
func (c *Client) DisableUser(ctx context.Context, token string, target Target) error {
	body := map[string]interface{}{"accountEnabled": false}
	path := fmt.Sprintf("/users/%s", url.PathEscape(target.Ref()))
	return c.do(ctx, token, "PATCH", path, body, nil)
}

// RevokeSessions invalidates all of the user's active sign-in sessions.
func (c *Client) RevokeSessions(ctx context.Context, token string, target Target) error {
	path := fmt.Sprintf("/users/%s/revokeSignInSessions", url.PathEscape(target.Ref()))
	return c.do(ctx, token, "POST", path, nil, nil)
}

// ResolveObjectID resolves the target's durable object identifier.
// Membership-removal calls require the object id even when the record only
// carries a principal name or email.
func (c *Client) ResolveObjectID(ctx context.Context, token string, target Target) (string, error) {
	if target.ObjectID != "" {
		return target.ObjectID, nil
	}

	ref := target.Ref()
	if ref == "" {
		return "", errors.New("target has no identifier to resolve")
	}

	var user struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/users/%s?$select=id", url.PathEscape(ref))
	if err := c.do(ctx, token, "GET", path, nil, &user); err != nil {
		return "", errors.Wrapf(err, "failed to resolve user %q", ref)
	}
	if user.ID == "" {
		return "", errors.Newf("directory returned no object id for %q", ref)
	}

	return user.ID, nil
}

// ListMemberships returns the groups the user is a member of.
func (c *Client) ListMemberships(ctx context.Context, token, objectID string) ([]Group, error) {
	var result struct {
		Value []Group `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/memberOf", url.PathEscape(objectID))
	if err := c.do(ctx, token, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// RemoveFromGroup removes the user from one group.
func (c *Client) RemoveFromGroup(ctx context.Context, token, groupID, objectID string) error {
	path := fmt.Sprintf("/groups/%s/members/%s/$ref",
		url.PathEscape(groupID), url.PathEscape(objectID))
	return c.do(ctx, token, "DELETE", path, nil, nil)
}

// do performs one authenticated request and decodes the response into out.
// Non-2xx responses become *APIError with the provider's message when present.
func (c *Client) do(ctx context.Context, token, method, path string, body interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter interrupted")
		}
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "failed to parse %s %s response", method, path)
		}
	}

	return nil
}

// apiError parses the provider's error envelope ({"error":{"code","message"}}).
func (c *Client) apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	if c.logger != nil {
		c.logger.Debugw("Directory API error",
			"status", status,
			"code", apiErr.Code,
			"message", apiErr.Message)
	}

	return apiErr
}
