package fakeapi

import (
	"encoding/json"
	"net/http"

	"webmail/internal/models"

	"github.com/gorilla/websocket"
)

// SetRealtimeAvailable makes the websocket endpoint refuse handshakes with 503 while false.
func (s *Server) SetRealtimeAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtimeDown = !available
}

// SetReplayOnConnect makes every new socket receive all previously pushed frames first.
func (s *Server) SetReplayOnConnect(replay bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replay = replay
}

// Push sends msg to every connected socket.
func (s *Server) Push(msg models.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.PushRaw(data)
	return nil
}

// PushRaw sends data as-is to every connected socket.
func (s *Server) PushRaw(data []byte) {
	s.mu.Lock()
	s.pushed = append(s.pushed, data)
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		if err := sock.write(websocket.TextMessage, data); err != nil {
			s.Logger.Debug("fakeapi: push failed", "error", err)
		}
	}
}

// DropConnections closes every socket without a close frame, like a network failure.
func (s *Server) DropConnections() {
	s.mu.Lock()
	sockets := s.sockets
	s.sockets = make(map[*socket]struct{})
	s.mu.Unlock()

	for sock := range sockets {
		_ = sock.conn.Close()
	}
}

func (s *Server) ConnectedSockets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.realtimeDown
	s.mu.Unlock()
	if down {
		writeError(w, http.StatusServiceUnavailable, "realtime unavailable")
		return
	}

	userID, _, err := s.verify(r, false)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("fakeapi: error upgrading to websocket", "error", err)
		return
	}
	sock := &socket{conn: conn}
	defer func() {
		s.mu.Lock()
		delete(s.sockets, sock)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	var msg models.ClientMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != models.ClientMessageTypeSubscribe {
		s.Logger.Debug("fakeapi: socket closed before subscribing", "user_id", userID, "error", err)
		return
	}

	// Register and snapshot the replay under one lock so no push is missed or doubled.
	s.mu.Lock()
	var backlog [][]byte
	if s.replay {
		backlog = append(backlog, s.pushed...)
	}
	sock.mu.Lock()
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()
	for _, data := range backlog {
		if err := sock.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			sock.mu.Unlock()
			return
		}
	}
	sock.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
