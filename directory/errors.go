package directory

import (
	"fmt"

	"github.com/teranos/offramp/errors"
)

// APIError is a non-2xx response from the directory API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("directory API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("directory API error %d: %s", e.StatusCode, e.Message)
}

// AuthError is a rejected or impossible token exchange. Fatal for the record:
// no directory action is attempted after one.
type AuthError struct {
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authentication failed: %s", e.Code)
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsAPIError reports whether err is or wraps an *APIError, returning it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
