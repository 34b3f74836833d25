package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"webmail/internal/auth"
	"webmail/internal/commands"
	"webmail/internal/config"
	"webmail/internal/filestore"
	"webmail/internal/storage"
	"webmail/internal/webmail"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("webmail", flag.ContinueOnError)
	login := flags.Bool("login", false, "Log in with WEBMAIL_USER and WEBMAIL_PASSWORD and remember the session")
	list := flags.String("list", "", "Print the conversations of a folder (inbox, sent, drafts, starred, archived, trash)")
	watch := flags.Bool("watch", false, "Stream realtime notifications until interrupted")
	save := flags.String("save", "", "Download the attachment with this ID into WEBMAIL_DOWNLOADS")
	logout := flags.Bool("logout", false, "End the session")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if !*login && *list == "" && !*watch && *save == "" && !*logout {
		flags.Usage()
		return errors.New("nothing to do")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := sessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	client, err := webmail.New(webmail.Config{
		APIURL:          cfg.APIURL,
		WSURL:           cfg.WSURL,
		RequestTimeout:  cfg.RequestTimeout,
		CookieTTL:       cfg.CookieTTL,
		ReconnectDelays: cfg.ReconnectDelays,
		ErrorReporter: func(err error) {
			log.Printf("Request failed: %v", err)
		},
	}, store)
	if err != nil {
		return err
	}
	defer client.Close()

	if *login {
		if err := commands.Login(ctx, client, cfg.Username, cfg.Password, out); err != nil {
			return err
		}
	} else if _, err := client.Resume(ctx); err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return errors.New("not logged in, run with -login first")
		}
		return err
	}

	if *list != "" {
		if err := commands.ListFolder(ctx, client, *list, out); err != nil {
			return err
		}
	}

	if *save != "" {
		files, err := filestore.NewLocalFileStore(cfg.DownloadsPath)
		if err != nil {
			return err
		}
		if err := commands.SaveAttachment(ctx, client, files, db, *save, out); err != nil {
			return err
		}
	}

	if *watch {
		g, gCtx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return commands.Watch(gCtx, client, out)
		})

		g.Go(func() error {
			<-gCtx.Done()
			log.Println("Closing realtime channel...")
			client.Close()
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
	}

	if *logout {
		return commands.Logout(ctx, client, out)
	}
	return nil
}

func sessionStore(ctx context.Context, cfg *config.Config, db *storage.BboltStorage) (auth.Store, error) {
	switch cfg.TokenStore {
	case config.TokenStoreKeyring:
		ring, err := storage.OpenKeyring(filepath.Dir(cfg.DBFile))
		if err != nil {
			return nil, err
		}
		return storage.NewKeyringStore(ring), nil
	case config.TokenStoreMemory:
		return auth.NewMemoryStore(ctx, cfg.CookieTTL), nil
	default:
		return db, nil
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
