// Package webmail assembles the session core of one running mail client:
// credentials, the authenticated request pipeline and the realtime channel.
package webmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"webmail/internal/api"
	"webmail/internal/auth"
	"webmail/internal/models"
	"webmail/internal/ws"

	"github.com/google/uuid"
)

// SessionExpiredMessage is the notice shown when the user has to log in again.
const SessionExpiredMessage = "Your session has expired. Please log in again."

type Config struct {
	APIURL          string
	WSURL           string
	RequestTimeout  time.Duration
	CookieTTL       time.Duration
	ReconnectDelays []time.Duration
	HTTPClient      *http.Client
	Dialer          ws.Dialer
	// ErrorReporter receives request errors meant for the user.
	ErrorReporter func(err error)
	Logger        *slog.Logger
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api url is required")
	}
	if c.WSURL == "" {
		return errors.New("realtime url is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type Client struct {
	Config
	manager *auth.Manager
	api     *api.Client
	channel *ws.Channel

	mu              sync.Mutex
	expiredHandlers map[string]func(message string)
}

func New(config Config, store auth.Store) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiConfig := api.Config{
		BaseURL:       config.APIURL,
		Timeout:       config.RequestTimeout,
		HTTPClient:    config.HTTPClient,
		ErrorReporter: config.ErrorReporter,
		Logger:        config.Logger,
	}
	authClient, err := api.NewAuthClient(apiConfig)
	if err != nil {
		return nil, err
	}
	manager, err := auth.NewManager(auth.Config{CookieTTL: config.CookieTTL, Logger: config.Logger}, authClient, store)
	if err != nil {
		return nil, err
	}
	apiClient, err := api.NewClient(apiConfig, manager)
	if err != nil {
		return nil, err
	}
	channel, err := ws.NewChannel(ws.Config{
		URL:             config.WSURL,
		ReconnectDelays: config.ReconnectDelays,
		Token:           manager.GetValidToken,
		Dialer:          config.Dialer,
		Logger:          config.Logger,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		Config:          config,
		manager:         manager,
		api:             apiClient,
		channel:         channel,
		expiredHandlers: make(map[string]func(message string)),
	}
	manager.OnSessionEnd(c.sessionEnded)
	return c, nil
}

// Login starts a new Session and opens the realtime channel for it.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	s, err := c.manager.Login(ctx, username, password)
	if err != nil {
		return auth.Session{}, err
	}
	c.connect(ctx, s.Token)
	return s, nil
}

// Resume restores the persisted Session, renewing its token if needed,
// and opens the realtime channel for it.
func (c *Client) Resume(ctx context.Context) (auth.Session, error) {
	if _, err := c.manager.Resume(ctx); err != nil {
		return auth.Session{}, err
	}
	token, err := c.manager.GetValidToken(ctx)
	if err != nil {
		return auth.Session{}, err
	}
	c.connect(ctx, token)

	s, _ := c.manager.Session()
	return s, nil
}

// connect replaces any prior channel connection. A channel that cannot
// authenticate is reported through its status, not as a login failure.
func (c *Client) connect(ctx context.Context, token string) {
	if err := c.channel.Connect(ctx, token); err != nil {
		c.Logger.Warn("realtime channel not connected", "error", err)
	}
}

func (c *Client) Logout(ctx context.Context) {
	c.manager.Logout(ctx)
	c.channel.Disconnect()
}

// Close stops the realtime channel and keeps the Session for the next run.
func (c *Client) Close() {
	c.channel.Disconnect()
}

func (c *Client) Session() (auth.Session, bool) {
	return c.manager.Session()
}

func (c *Client) IsAuthenticated() bool {
	return c.manager.IsAuthenticated()
}

// Send dispatches an authenticated request through the pipeline.
func (c *Client) Send(ctx context.Context, req api.Request) (*api.Response, error) {
	return c.api.Send(ctx, req)
}

// API exposes the typed mailbox helpers.
func (c *Client) API() *api.Client {
	return c.api
}

func (c *Client) OnEvent(handler func(models.NotificationEvent)) (unsubscribe func()) {
	return c.channel.OnEvent(handler)
}

func (c *Client) OnStatus(handler func(models.StatusChange)) (unsubscribe func()) {
	return c.channel.OnStatus(handler)
}

func (c *Client) Status() models.ConnectionStatus {
	return c.channel.Status()
}

func (c *Client) Events() []models.NotificationEvent {
	return c.channel.Events()
}

// OnSessionExpired registers a handler called with a user notice whenever
// the Session is destroyed because it could not be renewed. The returned
// function removes it.
func (c *Client) OnSessionExpired(handler func(message string)) (unsubscribe func()) {
	id := uuid.NewString()
	c.mu.Lock()
	c.expiredHandlers[id] = handler
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.expiredHandlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) sessionEnded(reason error) {
	if !errors.Is(reason, auth.ErrSessionExpired) {
		c.channel.Disconnect()
		return
	}

	c.Logger.Warn("session expired, logging out")
	c.channel.MarkNotAuthenticated()

	c.mu.Lock()
	handlers := make([]func(string), 0, len(c.expiredHandlers))
	for _, h := range c.expiredHandlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(SessionExpiredMessage)
	}
}
