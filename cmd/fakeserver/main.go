// Command fakeserver runs the in-process mail backend on a TCP port so the
// webmail CLI can be tried without a real server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webmail/internal/fakeapi"
	"webmail/internal/http"
	"webmail/internal/models"
	"webmail/internal/stubs"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	addr := flag.String("addr", "localhost:8080", "Address to listen on")
	tokenTTL := flag.Duration("token-ttl", fakeapi.DefaultTokenTTL, "Lifetime of issued tokens")
	pushEvery := flag.Duration("push-every", 0, "Push a sample notification at this interval (0 disables)")
	flag.Parse()

	backend, err := fakeapi.NewUnstarted(fakeapi.Config{TokenTTL: *tokenTTL})
	if err != nil {
		return err
	}
	server := http.NewServer(backend.Handler(), *addr)

	for _, a := range stubs.Accounts {
		log.Printf("Account: %s / %s", a.Username, a.Password)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if *pushEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(*pushEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case t := <-ticker.C:
					err := backend.Push(models.ServerMessage{
						Type: models.ServerMessageTypeNotification,
						ID:   uuid.NewString(),
						Data: []byte(`{"text":"Sample notification at ` + t.Format(time.Kitchen) + `"}`),
					})
					if err != nil {
						log.Printf("Push failed: %v", err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		backend.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
