// Package fakeapi is an in-process mail backend for tests and local runs.
// It issues signed bearer tokens, serves the mailbox endpoints and pushes
// realtime events over a websocket.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"webmail/internal/models"
	"webmail/internal/stubs"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DefaultTokenTTL = 15 * time.Minute

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Logger   *slog.Logger
}

func (c *Config) Validate() error {
	if len(c.Secret) == 0 {
		c.Secret = []byte(uuid.NewString())
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.TokenTTL < 0 {
		return errors.New("token ttl must not be negative")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

type Server struct {
	Config
	handler    http.Handler
	httpServer *httptest.Server
	upgrader   *websocket.Upgrader

	mu           sync.Mutex
	hits         map[string]int
	failures     map[string]int
	rejected     map[string]bool
	revoked      map[string]bool
	refreshFails bool
	refreshDelay time.Duration
	realtimeDown bool
	replay       bool
	pushed       [][]byte
	sockets      map[*socket]struct{}
	sent         []models.Message
	folders      map[models.Folder][]models.Conversation

	now func() time.Time
}

// New starts a backend on a loopback port. Close it when done.
func New(config Config) (*Server, error) {
	s, err := NewUnstarted(config)
	if err != nil {
		return nil, err
	}
	s.httpServer = httptest.NewServer(s.handler)
	return s, nil
}

// NewUnstarted builds a backend without listening; serve Handler yourself.
func NewUnstarted(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		Config: config,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hits:     make(map[string]int),
		failures: make(map[string]int),
		rejected: make(map[string]bool),
		revoked:  make(map[string]bool),
		sockets:  make(map[*socket]struct{}),
		folders:  make(map[models.Folder][]models.Conversation),
		now:      time.Now,
	}
	for folder, conversations := range stubs.Folders {
		s.folders[folder] = append([]models.Conversation(nil), conversations...)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.count(s.loginHandler))
	mux.HandleFunc("GET /auth/refresh", s.count(s.refreshHandler))
	mux.HandleFunc("GET /api/conversations", s.count(s.requireAuth(s.conversationsHandler)))
	mux.HandleFunc("GET /api/conversations/{id}", s.count(s.requireAuth(s.conversationHandler)))
	mux.HandleFunc("POST /api/conversations/{id}/move", s.count(s.requireAuth(s.moveHandler)))
	mux.HandleFunc("POST /api/messages", s.count(s.requireAuth(s.sendMessageHandler)))
	mux.HandleFunc("GET /api/contacts", s.count(s.requireAuth(s.contactsHandler)))
	mux.HandleFunc("GET /api/attachments/{id}", s.count(s.requireAuth(s.attachmentHandler)))
	mux.HandleFunc("GET /ws", s.count(s.wsHandler))

	s.handler = mux
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) URL() string {
	return s.httpServer.URL
}

func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.DropConnections()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// IssueToken signs a token for userID expiring at exp.
func (s *Server) IssueToken(userID string, exp time.Time) string {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		panic(fmt.Sprintf("failed to sign token: %v", err))
	}
	return token
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Fail makes every request to path answer status. Status 0 clears it.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

// RejectToken makes the mailbox endpoints answer 401 for token even before it expires.
func (s *Server) RejectToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[token] = true
}

// Revoke ends every session of userID: its tokens can no longer be used or refreshed.
func (s *Server) Revoke(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[userID] = true
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenTTL = ttl
}

func (s *Server) tokenTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TokenTTL
}

func (s *Server) SetRefreshFails(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = fail
}

// SetRefreshDelay holds every refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// Sent returns the messages posted to /api/messages.
func (s *Server) Sent() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.sent...)
}

func (s *Server) count(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		status := s.failures[r.URL.Path]
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next(w, r)
	}
}

// verify checks the signature of a bearer token and returns its subject.
// Claims validation is skipped when allowExpired is set.
func (s *Server) verify(r *http.Request, allowExpired bool) (string, string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", "", errors.New("missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[claims.Subject] {
		return "", "", errors.New("session revoked")
	}
	if !allowExpired && s.rejected[token] {
		return "", "", errors.New("token rejected")
	}
	return claims.Subject, token, nil
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := s.verify(r, false); err != nil {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
