package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"webmail/internal/auth"
	"webmail/internal/models"
	"webmail/internal/webmail"
)

// Watch prints realtime events and connection changes until ctx is done
// or the session expires.
func Watch(ctx context.Context, client *webmail.Client, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(out, format, args...)
	}

	expired := make(chan struct{})
	var once sync.Once
	unsubscribeExpired := client.OnSessionExpired(func(message string) {
		printf("%s\n", message)
		once.Do(func() { close(expired) })
	})
	defer unsubscribeExpired()

	unsubscribeStatus := client.OnStatus(func(change models.StatusChange) {
		switch {
		case change.Restored:
			printf("[connection restored]\n")
		default:
			printf("[%s]\n", change.Status)
		}
	})
	defer unsubscribeStatus()

	unsubscribeEvents := client.OnEvent(func(e models.NotificationEvent) {
		summary := e.Summary
		if summary == "" {
			summary = "(no preview)"
		}
		printf("%s #%d %s\n", e.Kind, e.Seq, summary)
	})
	defer unsubscribeEvents()

	if client.Status() == models.StatusNotAuthenticated {
		return auth.ErrSessionExpired
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return auth.ErrSessionExpired
	}
}
