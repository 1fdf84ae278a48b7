package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/offramp/errors"
)

func TestTokenExchange(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://graph.microsoft.com/.default", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","token_type":"Bearer","expires_in":3599}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.URL, "https://graph.microsoft.com/.default", srv.Client())

	token, err := ts.Token(context.Background(), "app-1", "tenant-1", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
	assert.Equal(t, "/tenant-1/oauth2/v2.0/token", gotPath)
}

func TestTokenExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret provided."}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.URL, "scope", srv.Client())

	_, err := ts.Token(context.Background(), "app-1", "tenant-1", "wrong")
	require.Error(t, err)

	require.True(t, IsAuthError(err))
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid_client", authErr.Code)
	assert.Contains(t, authErr.Description, "AADSTS7000215")
}

func TestTokenMissingSecret(t *testing.T) {
	ts := NewTokenSource("https://login.example.com", "scope", http.DefaultClient)

	_, err := ts.Token(context.Background(), "app-1", "tenant-1", "")
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "missing_client_secret", authErr.Code)
}

func TestTokenEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.URL, "scope", srv.Client())

	_, err := ts.Token(context.Background(), "app-1", "tenant-1", "s3cret")
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "empty_token", authErr.Code)
}
