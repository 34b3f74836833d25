package http

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
)

// Server runs a handler on a TCP address until shut down.
type Server struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewServer(handler http.Handler, addr string) *Server {
	if addr == "" {
		addr = "localhost:8080"
	}

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

func (s *Server) Serve(l net.Listener) error {
	log.Printf("Server started on %s", l.Addr())
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
