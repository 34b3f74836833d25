package auth

import (
	"context"
	"errors"
	"time"

	"webmail/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const sessionKey = "session"

// Session is the current authentication state of the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// IsAuthenticated reports whether the session holds a token that has not expired at now.
func (s Session) IsAuthenticated(now time.Time) bool {
	return s.Token != "" && s.ExpiresAt.After(now)
}

// ExpiresAt decodes the expiry embedded in a bearer token.
// The signature is not verified: the client only needs the claim,
// the backend is the one validating the token.
func ExpiresAt(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired fails closed: undecodable tokens and tokens without an expiry are expired.
// A token is valid only while its expiry is strictly after now.
func IsExpired(token string, now time.Time) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !exp.After(now)
}

// Persisted is the session record kept in the client-side cookie store.
type Persisted struct {
	Token   string
	User    models.User
	Expires time.Time
}

// Store keeps the session cookie between runs.
// Load returns ErrNoSession when nothing is stored or the cookie lifetime has passed.
type Store interface {
	Load() (Persisted, error)
	Save(p Persisted) error
	Delete() error
}

// MemoryStore keeps the cookie in process memory for its lifetime only.
type MemoryStore struct {
	cookies geche.Geche[string, Persisted]
	now     func() time.Time
}

func NewMemoryStore(ctx context.Context, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultCookieTTL
	}
	return &MemoryStore{
		cookies: geche.NewMapTTLCache[string, Persisted](ctx, ttl, time.Minute),
		now:     time.Now,
	}
}

func (s *MemoryStore) Load() (Persisted, error) {
	p, err := s.cookies.Get(sessionKey)
	if err != nil {
		return Persisted{}, ErrNoSession
	}
	if !p.Expires.After(s.now()) {
		_ = s.cookies.Del(sessionKey)
		return Persisted{}, ErrNoSession
	}
	return p, nil
}

func (s *MemoryStore) Save(p Persisted) error {
	s.cookies.Set(sessionKey, p)
	return nil
}

func (s *MemoryStore) Delete() error {
	_ = s.cookies.Del(sessionKey)
	return nil
}
