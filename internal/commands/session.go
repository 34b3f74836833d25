package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"webmail/internal/webmail"
)

func Login(ctx context.Context, client *webmail.Client, username, password string, out io.Writer) error {
	if username == "" || password == "" {
		return errors.New("WEBMAIL_USER and WEBMAIL_PASSWORD are required to log in")
	}
	s, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Logged in as %s <%s>\n", s.User.DisplayName, s.User.Email)
	_, _ = fmt.Fprintf(out, "Token valid until %s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func Logout(ctx context.Context, client *webmail.Client, out io.Writer) error {
	client.Logout(ctx)
	_, _ = fmt.Fprintln(out, "Logged out.")
	return nil
}
