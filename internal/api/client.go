package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"webmail/internal/auth"

	"github.com/google/uuid"
)

const DefaultTimeout = 30 * time.Second

// TokenSource supplies bearer tokens to the pipeline. *auth.Manager implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
	Renew(ctx context.Context, staleToken string) (string, error)
	Expire()
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// ErrorReporter receives errors that should be shown to the user:
	// every HTTP error other than an authorization failure.
	ErrorReporter func(err error)
	Logger        *slog.Logger
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Client is the request pipeline: every authenticated API call goes through Send.
type Client struct {
	Config
	transport *transport
	tokens    TokenSource
}

func NewClient(config Config, tokens TokenSource) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	t, err := newTransport(config.BaseURL, config.HTTPClient, config.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{Config: config, transport: t, tokens: tokens}, nil
}

type requestState int

const (
	statePending requestState = iota
	stateSent
	stateRetrySent
	stateSucceeded
	stateFailed
)

func (s requestState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateSent:
		return "sent"
	case stateRetrySent:
		return "retry-sent"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// send is the only way a request leaves the client. A request is sent at
// most twice: once, and once more after an unauthorized response.
func (s requestState) send() (requestState, error) {
	switch s {
	case statePending:
		return stateSent, nil
	case stateSent:
		return stateRetrySent, nil
	}
	return s, fmt.Errorf("request in state %s cannot be sent", s)
}

// Send attaches a valid token and dispatches the request. An unauthorized
// response is retried once with a renewed token; a second one ends the session
// with auth.ErrSessionExpired. Other HTTP errors are returned as *HTTPError.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	state := statePending
	defer func() {
		c.Logger.Debug("request finished",
			"method", req.Method, "path", req.Path, "request_id", requestID, "state", state)
	}()

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	for {
		if state, err = state.send(); err != nil {
			return nil, err
		}

		header := http.Header{}
		header.Set("Authorization", bearer(token))
		header.Set(headerRequestID, requestID)

		resp, err := c.transport.do(ctx, req, header)
		if err != nil {
			state = stateFailed
			return nil, err
		}

		switch {
		case resp.StatusCode < 400:
			state = stateSucceeded
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized && state == stateSent:
			c.Logger.Debug("request unauthorized, renewing token",
				"method", req.Method, "path", req.Path, "request_id", requestID)
			token, err = c.tokens.Renew(ctx, token)
			if err != nil {
				state = stateFailed
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized:
			state = stateFailed
			c.Logger.Warn("request unauthorized after token renewal, ending session",
				"method", req.Method, "path", req.Path, "request_id", requestID)
			c.tokens.Expire()
			return nil, fmt.Errorf("%w: %w", auth.ErrSessionExpired, newHTTPError(req.Method, req.Path, resp))

		default:
			state = stateFailed
			httpErr := newHTTPError(req.Method, req.Path, resp)
			c.report(httpErr)
			return nil, httpErr
		}
	}
}

func (c *Client) report(err error) {
	c.Logger.Info("request failed", "error", err)
	if c.ErrorReporter != nil {
		c.ErrorReporter(err)
	}
}
