package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"webmail/internal/eventlog"
	"webmail/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

const DefaultDedupWindow = 10 * time.Minute

var (
	ErrTransport        = errors.New("realtime transport error")
	ErrNotAuthenticated = errors.New("realtime channel not authenticated")
)

// DefaultReconnectDelays is the bounded backoff used after a transport failure.
var DefaultReconnectDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

type Config struct {
	URL string
	// ReconnectDelays are waited in order before each reconnect attempt.
	// When all attempts fail the channel becomes Failed.
	ReconnectDelays []time.Duration
	// Token, when set, supplies the token for reconnect attempts so a renewed
	// session is used after an outage. An error from it means not authenticated.
	Token func(ctx context.Context) (string, error)
	// DedupWindow bounds how long event ids are remembered per connection.
	DedupWindow time.Duration
	Dialer      Dialer
	Logger      *slog.Logger
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("realtime url is required")
	}
	if c.ReconnectDelays == nil {
		c.ReconnectDelays = DefaultReconnectDelays
	}
	for i, d := range c.ReconnectDelays {
		if d <= 0 {
			return fmt.Errorf("reconnect delay %d must be positive, got %s", i, d)
		}
		if i > 0 && d < c.ReconnectDelays[i-1] {
			return errors.New("reconnect delays must not decrease")
		}
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.Dialer == nil {
		c.Dialer = NewDialer(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// link is one connection lifetime: from Connect to Disconnect.
type link struct {
	ctx    context.Context
	cancel context.CancelFunc
	token  string
	events *eventlog.Log
	seen   geche.Geche[string, struct{}]
	closed atomic.Bool

	mu   sync.Mutex
	conn Conn
}

func (l *link) setConn(conn Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return false
	}
	l.conn = conn
	return true
}

func (l *link) close() {
	l.closed.Store(true)
	l.cancel()
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Channel keeps one realtime connection to the backend event stream and
// delivers normalized events to observers in arrival order.
type Channel struct {
	Config

	mu      sync.Mutex
	status  models.ConnectionStatus
	current *link

	handlersMu     sync.RWMutex
	eventHandlers  map[string]func(models.NotificationEvent)
	statusHandlers map[string]func(models.StatusChange)

	now func() time.Time
}

func NewChannel(config Config) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Channel{
		Config:         config,
		status:         models.StatusDisconnected,
		eventHandlers:  make(map[string]func(models.NotificationEvent)),
		statusHandlers: make(map[string]func(models.StatusChange)),
		now:            time.Now,
	}, nil
}

// OnEvent registers an observer for every event appended from now on.
// The returned function removes it.
func (c *Channel) OnEvent(handler func(models.NotificationEvent)) (unsubscribe func()) {
	id := uuid.NewString()
	c.handlersMu.Lock()
	c.eventHandlers[id] = handler
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.eventHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Channel) OnStatus(handler func(models.StatusChange)) (unsubscribe func()) {
	id := uuid.NewString()
	c.handlersMu.Lock()
	c.statusHandlers[id] = handler
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.statusHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Channel) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Events returns the events of the current connection, oldest first.
func (c *Channel) Events() []models.NotificationEvent {
	c.mu.Lock()
	l := c.current
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.events.Records()
}

// Since returns the events of the current connection with Seq >= seq.
func (c *Channel) Since(seq int64) []models.NotificationEvent {
	c.mu.Lock()
	l := c.current
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.events.Since(seq)
}

// Connect replaces any existing connection with a new one authenticated by token.
// It returns once the first handshake has finished. A network failure is not
// an error: the channel moves to Reconnecting and keeps trying in the background.
// A rejected token yields ErrNotAuthenticated.
func (c *Channel) Connect(ctx context.Context, token string) error {
	lctx, cancel := context.WithCancel(context.Background())
	l := &link{
		ctx:    lctx,
		cancel: cancel,
		token:  token,
		seen:   geche.NewMapTTLCache[string, struct{}](lctx, c.DedupWindow, time.Minute),
	}
	l.events = eventlog.New(eventlog.Config{
		AppendCallback: func(event models.NotificationEvent) { c.deliver(l, event) },
	})

	c.mu.Lock()
	old := c.current
	c.current = l
	c.mu.Unlock()
	if old != nil {
		old.close()
	}
	c.setStatus(l, models.StatusConnecting, false)

	// Cancelling ctx during the handshake abandons the connection.
	aborted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.closeLink(l, models.StatusDisconnected)
		close(aborted)
	})
	conn, err := c.dial(lctx, token)
	if !stop() {
		<-aborted
	}

	switch {
	case lctx.Err() != nil:
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("connect aborted: %w", context.Canceled)
	case errors.Is(err, ErrNotAuthenticated):
		c.closeLink(l, models.StatusNotAuthenticated)
		return err
	case err != nil:
		c.Logger.Info("realtime connection failed, retrying", "error", err)
		c.setStatus(l, models.StatusReconnecting, false)
		go c.serve(l, nil)
		return nil
	}

	if !l.setConn(conn) {
		_ = conn.Close()
		return fmt.Errorf("connect aborted: %w", context.Canceled)
	}
	c.setStatus(l, models.StatusConnected, false)
	go c.serve(l, conn)
	return nil
}

// Disconnect closes the transport and stops event delivery. It is safe in
// any state, including during Connect, and never waits for the reader.
func (c *Channel) Disconnect() {
	c.teardown(models.StatusDisconnected)
}

// MarkNotAuthenticated tears the connection down because the session ended.
// A fresh Connect is needed to leave this state.
func (c *Channel) MarkNotAuthenticated() {
	c.teardown(models.StatusNotAuthenticated)
}

// teardown closes the current link and records status in the same critical
// section, so the link's goroutine cannot overwrite it afterwards.
func (c *Channel) teardown(status models.ConnectionStatus) {
	c.mu.Lock()
	c.finish(c.current, status)
}

// closeLink closes l and records status if l is still the current link.
// A link already closed by teardown keeps the status teardown recorded.
func (c *Channel) closeLink(l *link, status models.ConnectionStatus) {
	c.mu.Lock()
	if l.closed.Load() {
		c.mu.Unlock()
		return
	}
	c.finish(l, status)
}

// finish must be called with c.mu held and releases it.
func (c *Channel) finish(l *link, status models.ConnectionStatus) {
	if l != nil {
		l.close()
	}
	if c.current != l || c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()
	c.notifyStatus(models.StatusChange{Status: status})
}

// serve reads from conn until it fails, then reconnects. A nil conn starts
// with reconnecting.
func (c *Channel) serve(l *link, conn Conn) {
	for {
		if conn != nil {
			err := c.read(l, conn)
			_ = conn.Close()
			if l.ctx.Err() != nil {
				return
			}
			c.Logger.Info("realtime connection lost", "error", err)
		}

		conn = c.reconnect(l)
		if conn == nil {
			return
		}
	}
}

func (c *Channel) read(l *link, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		event, err := normalize(data, c.now())
		if err != nil {
			c.Logger.Warn("dropping realtime event", "error", err)
			continue
		}

		if event.ID != "" {
			if _, err := l.seen.Get(event.ID); err == nil {
				c.Logger.Debug("skipping duplicate realtime event", "id", event.ID)
				continue
			}
			l.seen.Set(event.ID, struct{}{})
		}

		if l.closed.Load() {
			return l.ctx.Err()
		}
		l.events.Append(event)
	}
}

func (c *Channel) reconnect(l *link) Conn {
	c.setStatus(l, models.StatusReconnecting, false)

	for attempt, delay := range c.ReconnectDelays {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-l.ctx.Done():
			timer.Stop()
			return nil
		}

		token := l.token
		if c.Token != nil {
			t, err := c.Token(l.ctx)
			if l.ctx.Err() != nil {
				return nil
			}
			if err != nil {
				c.Logger.Warn("no token for realtime reconnect", "error", err)
				c.closeLink(l, models.StatusNotAuthenticated)
				return nil
			}
			token = t
		}

		c.Logger.Info("reconnecting realtime channel", "attempt", attempt+1, "of", len(c.ReconnectDelays))
		conn, err := c.dial(l.ctx, token)
		switch {
		case l.ctx.Err() != nil:
			if conn != nil {
				_ = conn.Close()
			}
			return nil
		case errors.Is(err, ErrNotAuthenticated):
			c.closeLink(l, models.StatusNotAuthenticated)
			return nil
		case err != nil:
			c.Logger.Info("realtime reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		if !l.setConn(conn) {
			_ = conn.Close()
			return nil
		}
		c.setStatus(l, models.StatusConnected, true)
		return conn
	}

	c.Logger.Warn("realtime channel gave up reconnecting", "attempts", len(c.ReconnectDelays))
	c.setStatus(l, models.StatusFailed, false)
	return nil
}

func (c *Channel) dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.Dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if err := conn.WriteJSON(models.ClientMessage{Type: models.ClientMessageTypeSubscribe}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return conn, nil
}

func (c *Channel) deliver(l *link, event models.NotificationEvent) {
	if l.closed.Load() {
		return
	}
	c.handlersMu.RLock()
	handlers := make([]func(models.NotificationEvent), 0, len(c.eventHandlers))
	for _, h := range c.eventHandlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		if l.closed.Load() {
			return
		}
		h(event)
	}
}

// setStatus records a transition made on behalf of link l. Transitions from a
// link that has been replaced or closed are ignored, as are repeats of the
// current status.
func (c *Channel) setStatus(l *link, status models.ConnectionStatus, restored bool) {
	c.mu.Lock()
	if c.current != l || l.closed.Load() || c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()
	c.notifyStatus(models.StatusChange{Status: status, Restored: restored})
}

func (c *Channel) notifyStatus(change models.StatusChange) {
	c.handlersMu.RLock()
	handlers := make([]func(models.StatusChange), 0, len(c.statusHandlers))
	for _, h := range c.statusHandlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(change)
	}
}
