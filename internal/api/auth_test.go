package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webmail/internal/auth"
	"webmail/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestAuthClient(t *testing.T, handler http.HandlerFunc) *AuthClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewAuthClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return a
}

func TestAuthClient_Login(t *testing.T) {
	a := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, pathLogin, r.URL.Path)

		var req models.LoginRequest
		require.NoError(t, jsonDecode(r, &req))
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, models.LoginResponse{Token: "tok", User: models.User{ID: "u1"}})
	})

	resp, err := a.Login(t.Context(), models.LoginRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, "tok", resp.Token)
	require.Equal(t, "u1", resp.User.ID)

	_, err = a.Login(t.Context(), models.LoginRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthClient_Refresh(t *testing.T) {
	a := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRefresh, r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer old":
			writeJSON(w, http.StatusOK, models.RefreshResponse{Token: "new"})
		case "Bearer empty":
			writeJSON(w, http.StatusOK, models.RefreshResponse{})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh window closed"})
		}
	})

	token, err := a.Refresh(t.Context(), "old")
	require.NoError(t, err)
	require.Equal(t, "new", token)

	_, err = a.Refresh(t.Context(), "empty")
	require.Error(t, err)

	_, err = a.Refresh(t.Context(), "revoked")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, &fakeTokens{})
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not a url"}, &fakeTokens{})
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost:8080"}, nil)
	require.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://localhost:8080"}, &fakeTokens{})
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, c.Timeout)
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
