package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"webmail/internal/auth"
	"webmail/internal/models"
)

const (
	pathLogin   = "/auth/login"
	pathRefresh = "/auth/refresh"
)

// AuthClient calls the login and refresh endpoints directly, outside the
// request pipeline. *AuthClient implements auth.Authenticator.
type AuthClient struct {
	transport *transport
}

func NewAuthClient(config Config) (*AuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t, err := newTransport(config.BaseURL, config.HTTPClient, config.Timeout)
	if err != nil {
		return nil, err
	}
	return &AuthClient{transport: t}, nil
}

func (a *AuthClient) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	r := Request{Method: http.MethodPost, Path: pathLogin, Body: req}
	resp, err := a.transport.do(ctx, r, nil)
	if err != nil {
		return models.LoginResponse{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return models.LoginResponse{}, auth.ErrInvalidCredentials
	}
	if resp.StatusCode >= 400 {
		return models.LoginResponse{}, newHTTPError(r.Method, r.Path, resp)
	}

	var loginResp models.LoginResponse
	if err := resp.Decode(&loginResp); err != nil {
		return models.LoginResponse{}, err
	}
	if loginResp.Token == "" {
		return models.LoginResponse{}, errors.New("login response has no token")
	}
	return loginResp, nil
}

// Refresh exchanges the current, possibly expired, token for a new one.
func (a *AuthClient) Refresh(ctx context.Context, token string) (string, error) {
	r := Request{Method: http.MethodGet, Path: pathRefresh}
	header := http.Header{}
	header.Set("Authorization", bearer(token))

	resp, err := a.transport.do(ctx, r, header)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", newHTTPError(r.Method, r.Path, resp)
	}

	var refreshResp models.RefreshResponse
	if err := resp.Decode(&refreshResp); err != nil {
		return "", err
	}
	if refreshResp.Token == "" {
		return "", fmt.Errorf("%s: response has no token", pathRefresh)
	}
	return refreshResp.Token, nil
}
