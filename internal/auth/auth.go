package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"webmail/internal/models"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCookieTTL    = 24 * time.Hour
	DefaultRenewTimeout = 30 * time.Second

	renewKey = "renew"
)

var (
	ErrSessionExpired     = errors.New("session expired")
	ErrNoSession          = errors.New("no session")
	ErrLoggedOut          = errors.New("logged out")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator talks to the backend auth endpoints.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error)
	Refresh(ctx context.Context, token string) (string, error)
}

type Config struct {
	// CookieTTL is the fixed lifetime of the persisted session cookie.
	CookieTTL time.Duration
	// RenewTimeout bounds a single renewal call.
	RenewTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) Validate() error {
	if c.CookieTTL < 0 {
		return errors.New("cookie ttl must not be negative")
	}
	if c.CookieTTL == 0 {
		c.CookieTTL = DefaultCookieTTL
	}
	if c.RenewTimeout == 0 {
		c.RenewTimeout = DefaultRenewTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Manager owns the client's single Session and keeps a valid token available.
// Concurrent callers that find the token expired share one renewal call.
type Manager struct {
	Config
	authn    Authenticator
	store    Store
	renewals singleflight.Group

	mu          sync.RWMutex
	session     *Session
	generation  uint64
	endHandlers []func(reason error)

	now func() time.Time
}

func NewManager(config Config, authn Authenticator, store Store) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Manager{
		Config: config,
		authn:  authn,
		store:  store,
		now:    time.Now,
	}, nil
}

// Login authenticates against the backend and replaces any current Session.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	resp, err := m.authn.Login(ctx, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return Session{}, err
	}

	exp, err := ExpiresAt(resp.Token)
	if err != nil {
		return Session{}, fmt.Errorf("login returned an unreadable token: %w", err)
	}
	s := Session{Token: resp.Token, ExpiresAt: exp, User: resp.User}
	if !s.IsAuthenticated(m.now()) {
		return Session{}, errors.New("login returned an expired token")
	}

	m.mu.Lock()
	m.session = &s
	m.generation++
	m.mu.Unlock()

	m.persist(s)
	return s, nil
}

// Resume restores the Session from the persisted cookie.
// The restored token may already be expired; it is renewed on first use.
func (m *Manager) Resume(ctx context.Context) (Session, error) {
	p, err := m.store.Load()
	if err != nil {
		return Session{}, err
	}

	// An undecodable token keeps a zero expiry and fails IsExpired, so the
	// first GetValidToken goes straight to renewal.
	exp, _ := ExpiresAt(p.Token)
	s := Session{Token: p.Token, ExpiresAt: exp, User: p.User}

	m.mu.Lock()
	m.session = &s
	m.generation++
	m.mu.Unlock()

	return s, nil
}

// Logout destroys the Session and its cookie.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()
	m.end(gen, ErrLoggedOut)
}

// Expire destroys the Session after the backend rejected a freshly renewed token.
func (m *Manager) Expire() {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()
	m.end(gen, ErrSessionExpired)
}

// OnSessionEnd registers a handler called once per destroyed Session
// with ErrSessionExpired or ErrLoggedOut.
func (m *Manager) OnSessionEnd(handler func(reason error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endHandlers = append(m.endHandlers, handler)
}

func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

func (m *Manager) IsAuthenticated() bool {
	s, ok := m.Session()
	return ok && s.IsAuthenticated(m.now())
}

// GetValidToken returns a token that is not expired at return time,
// renewing it first if needed.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	s, ok := m.Session()
	if !ok {
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoSession)
	}
	if !IsExpired(s.Token, m.now()) {
		return s.Token, nil
	}
	return m.Renew(ctx, s.Token)
}

// Renew replaces staleToken with a fresh one. If another caller already
// replaced it, the current token is returned without a network call.
// Callers arriving while a renewal is in flight wait for its result.
func (m *Manager) Renew(ctx context.Context, staleToken string) (string, error) {
	ch := m.renewals.DoChan(renewKey, func() (any, error) {
		return m.renew(ctx, staleToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) renew(ctx context.Context, staleToken string) (string, error) {
	m.mu.RLock()
	s, gen := m.session, m.generation
	m.mu.RUnlock()

	if s == nil {
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoSession)
	}
	if s.Token != staleToken && !IsExpired(s.Token, m.now()) {
		return s.Token, nil
	}

	// The renewal outlives the caller that started it: other callers share its result.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.RenewTimeout)
	defer cancel()

	token, err := m.authn.Refresh(rctx, s.Token)
	if err == nil && IsExpired(token, m.now()) {
		err = errors.New("renewal returned an expired token")
	}
	if err != nil {
		m.Logger.Warn("token renewal failed", "user_id", s.User.ID, "error", err)
		m.end(gen, ErrSessionExpired)
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	exp, _ := ExpiresAt(token)
	renewed := Session{Token: token, ExpiresAt: exp, User: s.User}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return "", ErrSessionExpired
	}
	if m.generation != gen {
		// A Login replaced the Session while the renewal was in flight.
		current := m.session.Token
		m.mu.Unlock()
		if IsExpired(current, m.now()) {
			return "", ErrSessionExpired
		}
		return current, nil
	}
	m.session = &renewed
	m.mu.Unlock()

	m.persist(renewed)
	return token, nil
}

// end destroys the Session of generation gen, if it is still the current one.
func (m *Manager) end(gen uint64, reason error) {
	m.mu.Lock()
	if m.session == nil || m.generation != gen {
		m.mu.Unlock()
		return
	}
	userID := m.session.User.ID
	m.session = nil
	m.generation++
	handlers := make([]func(error), len(m.endHandlers))
	copy(handlers, m.endHandlers)
	m.mu.Unlock()

	if err := m.store.Delete(); err != nil {
		m.Logger.Error("failed to delete session cookie", "user_id", userID, "error", err)
	}
	if errors.Is(reason, ErrSessionExpired) {
		m.Logger.Warn("session ended", "user_id", userID, "reason", reason)
	}

	for _, h := range handlers {
		h(reason)
	}
}

func (m *Manager) persist(s Session) {
	err := m.store.Save(Persisted{
		Token:   s.Token,
		User:    s.User,
		Expires: m.now().Add(m.CookieTTL),
	})
	if err != nil {
		m.Logger.Error("failed to persist session cookie", "user_id", s.User.ID, "error", err)
	}
}
