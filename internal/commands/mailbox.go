package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"webmail/internal/api"
	"webmail/internal/filestore"
	"webmail/internal/models"
	"webmail/internal/storage"
	"webmail/internal/webmail"

	"github.com/h2non/filetype"
)

// AttachmentIndex remembers which attachments are already on disk.
type AttachmentIndex interface {
	GetAttachment(id string) (storage.DBAttachment, error)
	UpsertAttachment(meta storage.DBAttachment) error
}

func ListFolder(ctx context.Context, client *webmail.Client, folder string, out io.Writer) error {
	conversations, err := client.API().ListConversations(ctx, models.Folder(folder))
	if err != nil {
		return userError(err)
	}
	if len(conversations) == 0 {
		_, _ = fmt.Fprintf(out, "%s is empty.\n", folder)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range conversations {
		marker := " "
		if c.Unread {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			marker, c.ID, participants(c.Participants), c.Subject,
			time.Unix(c.UpdatedAt, 0).Local().Format("Jan 2 15:04"))
	}
	return w.Flush()
}

func participants(contacts []models.Contact) string {
	names := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if c.Name != "" {
			names = append(names, c.Name)
		} else {
			names = append(names, c.Email)
		}
	}
	return strings.Join(names, ", ")
}

// SaveAttachment downloads an attachment into the file store once and prints where it lives.
func SaveAttachment(ctx context.Context, client *webmail.Client, files filestore.FileStore, index AttachmentIndex, id string, out io.Writer) error {
	if meta, err := index.GetAttachment(id); err == nil {
		if _, statErr := os.Stat(files.Path(meta.Hash)); statErr == nil {
			_, _ = fmt.Fprintf(out, "%s already saved at %s\n", id, files.Path(meta.Hash))
			return nil
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	data, err := client.API().DownloadAttachment(ctx, id)
	if err != nil {
		return userError(err)
	}

	meta := storage.DBAttachment{
		ID:       id,
		Hash:     filestore.Hash(data),
		Name:     id,
		MimeType: "application/octet-stream",
		Size:     int64(len(data)),
		SavedAt:  time.Now().Unix(),
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		meta.MimeType = kind.MIME.Value
		meta.Name = id + "." + kind.Extension
	}

	if err := files.Save(bytes.NewReader(data), meta.Hash); err != nil {
		return err
	}
	if err := index.UpsertAttachment(meta); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Saved %s (%s, %d bytes) to %s\n", meta.Name, meta.MimeType, meta.Size, files.Path(meta.Hash))
	return nil
}

// userError replaces an HTTP error with the sentence meant for the user.
func userError(err error) error {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && !errors.Is(err, api.ErrUnauthorized) {
		return errors.New(httpErr.UserMessage())
	}
	return err
}
