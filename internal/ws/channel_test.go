package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"webmail/internal/fakeapi"
	"webmail/internal/models"

	"github.com/stretchr/testify/require"
)

var fastDelays = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}

const waitFor = 5 * time.Second

type recorder struct {
	mu       sync.Mutex
	events   []models.NotificationEvent
	statuses []models.StatusChange
}

func (r *recorder) event(e models.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) status(s models.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) Events() []models.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NotificationEvent(nil), r.events...)
}

func (r *recorder) Statuses() []models.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusChange(nil), r.statuses...)
}

func (r *recorder) ids() []string {
	var ids []string
	for _, e := range r.Events() {
		ids = append(ids, e.ID)
	}
	return ids
}

func newBackend(t *testing.T) *fakeapi.Server {
	t.Helper()
	srv, err := fakeapi.New(fakeapi.Config{})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func newTestChannel(t *testing.T, srv *fakeapi.Server, config Config) (*Channel, *recorder) {
	t.Helper()
	config.URL = srv.WSURL()
	if config.ReconnectDelays == nil {
		config.ReconnectDelays = fastDelays
	}
	ch, err := NewChannel(config)
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)

	rec := &recorder{}
	ch.OnEvent(rec.event)
	ch.OnStatus(rec.status)
	return ch, rec
}

func validToken(srv *fakeapi.Server) string {
	return srv.IssueToken("1", time.Now().Add(time.Hour))
}

func push(t *testing.T, srv *fakeapi.Server, typ models.ServerMessageType, id string) {
	t.Helper()
	data := fmt.Sprintf(`{"subject":"message %s"}`, id)
	require.NoError(t, srv.Push(models.ServerMessage{Type: typ, ID: id, Data: []byte(data)}))
}

func TestChannel_ConnectAndDeliver(t *testing.T) {
	srv := newBackend(t)
	ch, rec := newTestChannel(t, srv, Config{})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Equal(t, models.StatusConnected, ch.Status())
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	push(t, srv, models.ServerMessageTypeNotification, "e1")
	push(t, srv, models.ServerMessageTypeConversation, "e2")
	push(t, srv, models.ServerMessageTypeDirect, "e3")

	require.Eventually(t, func() bool { return len(rec.Events()) == 3 }, waitFor, 5*time.Millisecond)

	events := rec.Events()
	require.Equal(t, []string{"e1", "e2", "e3"}, rec.ids())
	for i, e := range events {
		require.EqualValues(t, i, e.Seq)
	}
	require.Equal(t, models.EventKindNotification, events[0].Kind)
	require.Equal(t, models.EventKindConversationMessage, events[1].Kind)
	require.Equal(t, models.EventKindDirectMessage, events[2].Kind)
	require.Equal(t, "message e2", events[1].Summary)

	require.Equal(t, events, ch.Events())
	require.Len(t, ch.Since(1), 2)

	require.Equal(t, []models.StatusChange{
		{Status: models.StatusConnecting},
		{Status: models.StatusConnected},
	}, rec.Statuses())
}

func TestChannel_DropsUnknownFrames(t *testing.T) {
	srv := newBackend(t)
	ch, rec := newTestChannel(t, srv, Config{})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	push(t, srv, models.ServerMessageTypeNotification, "e1")
	srv.PushRaw([]byte(`{"type":"typing","id":"x1"}`))
	srv.PushRaw([]byte(`not json at all`))
	push(t, srv, models.ServerMessageTypeNotification, "e2")

	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, 5*time.Millisecond)
	require.Equal(t, []string{"e1", "e2"}, rec.ids())
	require.EqualValues(t, 1, rec.Events()[1].Seq)
	require.Equal(t, models.StatusConnected, ch.Status())
}

func TestChannel_ReconnectRestoresWithoutDuplicates(t *testing.T) {
	srv := newBackend(t)
	srv.SetReplayOnConnect(true)
	ch, rec := newTestChannel(t, srv, Config{})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	push(t, srv, models.ServerMessageTypeNotification, "e1")
	push(t, srv, models.ServerMessageTypeDirect, "e2")
	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, 5*time.Millisecond)

	srv.DropConnections()

	require.Eventually(t, func() bool {
		statuses := rec.Statuses()
		last := statuses[len(statuses)-1]
		return last.Status == models.StatusConnected && last.Restored
	}, waitFor, 5*time.Millisecond)

	// The backend replays e1 and e2 on the new socket.
	push(t, srv, models.ServerMessageTypeConversation, "e3")
	require.Eventually(t, func() bool { return len(rec.Events()) >= 3 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, []string{"e1", "e2", "e3"}, rec.ids())
	require.Equal(t, []models.StatusChange{
		{Status: models.StatusConnecting},
		{Status: models.StatusConnected},
		{Status: models.StatusReconnecting},
		{Status: models.StatusConnected, Restored: true},
	}, rec.Statuses())
}

func TestChannel_FailsAfterExhaustingDelays(t *testing.T) {
	srv := newBackend(t)
	ch, rec := newTestChannel(t, srv, Config{})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	srv.SetRealtimeAvailable(false)
	srv.DropConnections()

	require.Eventually(t, func() bool { return ch.Status() == models.StatusFailed }, waitFor, 5*time.Millisecond)
	require.Equal(t, len(fastDelays)+1, srv.Hits("/ws"))

	statuses := rec.Statuses()
	require.Equal(t, models.StatusReconnecting, statuses[len(statuses)-2].Status)

	// A failed channel stays down until connected again.
	srv.SetRealtimeAvailable(true)
	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Equal(t, models.StatusConnected, ch.Status())
}

func TestChannel_FirstConnectRetriesInBackground(t *testing.T) {
	srv := newBackend(t)
	srv.SetRealtimeAvailable(false)
	ch, rec := newTestChannel(t, srv, Config{ReconnectDelays: []time.Duration{50 * time.Millisecond, time.Second}})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Equal(t, models.StatusReconnecting, ch.Status())

	srv.SetRealtimeAvailable(true)
	require.Eventually(t, func() bool { return ch.Status() == models.StatusConnected }, waitFor, 5*time.Millisecond)

	statuses := rec.Statuses()
	require.Equal(t, models.StatusChange{Status: models.StatusConnected, Restored: true}, statuses[len(statuses)-1])
}

func TestChannel_NotAuthenticated(t *testing.T) {
	srv := newBackend(t)
	ch, _ := newTestChannel(t, srv, Config{})

	expired := srv.IssueToken("1", time.Now().Add(-time.Minute))
	err := ch.Connect(t.Context(), expired)
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Equal(t, models.StatusNotAuthenticated, ch.Status())
	require.Equal(t, 1, srv.Hits("/ws"))
}

func TestChannel_ReconnectUsesTokenSource(t *testing.T) {
	srv := newBackend(t)

	var tokenCalls int
	var mu sync.Mutex
	ch, _ := newTestChannel(t, srv, Config{
		Token: func(ctx context.Context) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			tokenCalls++
			return "", errors.New("session expired")
		},
	})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)
	srv.DropConnections()

	require.Eventually(t, func() bool { return ch.Status() == models.StatusNotAuthenticated }, waitFor, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, tokenCalls)
	mu.Unlock()
	require.Equal(t, 1, srv.Hits("/ws"))
}

func TestChannel_DisconnectStopsDelivery(t *testing.T) {
	srv := newBackend(t)
	ch, rec := newTestChannel(t, srv, Config{})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	ch.Disconnect()
	ch.Disconnect()
	require.Equal(t, models.StatusDisconnected, ch.Status())

	push(t, srv, models.ServerMessageTypeNotification, "late")
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 0 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.Empty(t, rec.Events())
	require.Equal(t, 1, srv.Hits("/ws"))
}

func TestChannel_Unsubscribe(t *testing.T) {
	srv := newBackend(t)
	ch, rec := newTestChannel(t, srv, Config{})

	var mu sync.Mutex
	var other int
	unsubscribe := ch.OnEvent(func(models.NotificationEvent) {
		mu.Lock()
		other++
		mu.Unlock()
	})

	require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
	require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

	push(t, srv, models.ServerMessageTypeNotification, "e1")
	require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, waitFor, 5*time.Millisecond)

	unsubscribe()
	push(t, srv, models.ServerMessageTypeNotification, "e2")
	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, 1, other)
	mu.Unlock()
}

type blockingDialer struct {
	entered chan struct{}
}

func (d blockingDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error) {
	close(d.entered)
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func TestChannel_DisconnectDuringConnect(t *testing.T) {
	dialer := blockingDialer{entered: make(chan struct{})}
	ch, err := NewChannel(Config{URL: "ws://unused", Dialer: dialer, ReconnectDelays: fastDelays})
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- ch.Connect(context.Background(), "token") }()

	<-dialer.entered
	require.Equal(t, models.StatusConnecting, ch.Status())
	ch.Disconnect()

	select {
	case err := <-result:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("connect did not return after disconnect")
	}
	require.Equal(t, models.StatusDisconnected, ch.Status())
}

func TestChannel_ConnectContextCancelled(t *testing.T) {
	dialer := blockingDialer{entered: make(chan struct{})}
	ch, err := NewChannel(Config{URL: "ws://unused", Dialer: dialer, ReconnectDelays: fastDelays})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-dialer.entered
		cancel()
	}()

	err = ch.Connect(ctx, "token")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, models.StatusDisconnected, ch.Status())
}

// hookHandler runs fn the first time a record with message msg is logged.
type hookHandler struct {
	msg   string
	fn    func()
	once  sync.Once
	fired atomic.Bool
}

func (h *hookHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *hookHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() {
			h.fn()
			h.fired.Store(true)
		})
	}
	return nil
}

func (h *hookHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *hookHandler) WithGroup(string) slog.Handler      { return h }

type failingDialer struct {
	calls  atomic.Int32
	onCall func(n int32)
}

func (d *failingDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error) {
	n := d.calls.Add(1)
	if d.onCall != nil {
		d.onCall(n)
	}
	return nil, nil, errors.New("connection refused")
}

func requireStatusSettles(t *testing.T, ch *Channel, rec *recorder, want models.ConnectionStatus) {
	t.Helper()
	require.Equal(t, want, ch.Status())
	// Outlast every reconnect delay so a stray transition would have landed.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, want, ch.Status())

	statuses := rec.Statuses()
	require.NotEmpty(t, statuses)
	require.Equal(t, want, statuses[len(statuses)-1].Status)
}

func TestChannel_TeardownWhenConnectionLost(t *testing.T) {
	for name, tc := range map[string]struct {
		teardown func(*Channel)
		want     models.ConnectionStatus
	}{
		"disconnect":        {(*Channel).Disconnect, models.StatusDisconnected},
		"not authenticated": {(*Channel).MarkNotAuthenticated, models.StatusNotAuthenticated},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newBackend(t)
			var ch *Channel
			hook := &hookHandler{msg: "realtime connection lost", fn: func() { tc.teardown(ch) }}
			ch, rec := newTestChannel(t, srv, Config{Logger: slog.New(hook)})

			require.NoError(t, ch.Connect(t.Context(), validToken(srv)))
			require.Eventually(t, func() bool { return srv.ConnectedSockets() == 1 }, waitFor, 5*time.Millisecond)

			srv.DropConnections()
			require.Eventually(t, hook.fired.Load, waitFor, 5*time.Millisecond)

			requireStatusSettles(t, ch, rec, tc.want)
			for _, s := range rec.Statuses() {
				require.NotEqual(t, models.StatusReconnecting, s.Status)
			}
			require.Zero(t, srv.ConnectedSockets())
		})
	}
}

func TestChannel_DisconnectDuringLastReconnectAttempt(t *testing.T) {
	srv := newBackend(t)
	var (
		ch           *Channel
		disconnected atomic.Bool
	)
	dialer := &failingDialer{}
	dialer.onCall = func(n int32) {
		// The first call is Connect's own handshake.
		if int(n) == len(fastDelays)+1 {
			ch.Disconnect()
			disconnected.Store(true)
		}
	}
	ch, rec := newTestChannel(t, srv, Config{Dialer: dialer})

	require.NoError(t, ch.Connect(t.Context(), "token"))
	require.Eventually(t, disconnected.Load, waitFor, 5*time.Millisecond)

	requireStatusSettles(t, ch, rec, models.StatusDisconnected)
	for _, s := range rec.Statuses() {
		require.NotEqual(t, models.StatusFailed, s.Status)
	}
}

func TestChannel_DisconnectWhenGivingUp(t *testing.T) {
	srv := newBackend(t)
	var ch *Channel
	hook := &hookHandler{msg: "realtime channel gave up reconnecting", fn: func() { ch.Disconnect() }}
	ch, rec := newTestChannel(t, srv, Config{Dialer: &failingDialer{}, Logger: slog.New(hook)})

	require.NoError(t, ch.Connect(t.Context(), "token"))
	require.Eventually(t, hook.fired.Load, waitFor, 5*time.Millisecond)

	requireStatusSettles(t, ch, rec, models.StatusDisconnected)
	for _, s := range rec.Statuses() {
		require.NotEqual(t, models.StatusFailed, s.Status)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := Config{URL: "ws://localhost/ws"}
	require.NoError(t, c.Validate())
	require.Equal(t, DefaultReconnectDelays, c.ReconnectDelays)
	require.Equal(t, DefaultDedupWindow, c.DedupWindow)

	c = Config{}
	require.Error(t, c.Validate())

	c = Config{URL: "ws://localhost/ws", ReconnectDelays: []time.Duration{time.Second, time.Millisecond}}
	require.Error(t, c.Validate())

	c = Config{URL: "ws://localhost/ws", ReconnectDelays: []time.Duration{0, time.Second}}
	require.Error(t, c.Validate())

	c = Config{URL: "ws://localhost/ws", ReconnectDelays: []time.Duration{-time.Second}}
	require.Error(t, c.Validate())
}
