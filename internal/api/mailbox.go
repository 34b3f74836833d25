package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"webmail/internal/models"
)

func (c *Client) ListConversations(ctx context.Context, folder models.Folder) ([]models.Conversation, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("unknown folder %q", folder)
	}
	resp, err := c.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/conversations",
		Query:  url.Values{"folder": {string(folder)}},
	})
	if err != nil {
		return nil, err
	}
	var conversations []models.Conversation
	if err := resp.Decode(&conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	resp, err := c.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/conversations/" + url.PathEscape(id),
	})
	if err != nil {
		return models.Conversation{}, err
	}
	var conversation models.Conversation
	if err := resp.Decode(&conversation); err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// MoveConversation files a conversation into another folder (archive, trash, ...).
func (c *Client) MoveConversation(ctx context.Context, id string, folder models.Folder) error {
	if !folder.Valid() {
		return fmt.Errorf("unknown folder %q", folder)
	}
	_, err := c.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/conversations/" + url.PathEscape(id) + "/move",
		Body:   map[string]string{"folder": string(folder)},
	})
	return err
}

// SendMessage posts a new message, reply or forward with its attachments.
func (c *Client) SendMessage(ctx context.Context, draft models.Draft) (models.Message, error) {
	req := Request{
		Method:    http.MethodPost,
		Path:      "/api/messages",
		Multipart: true,
		Fields: map[string]string{
			"to":      strings.Join(draft.To, ","),
			"subject": draft.Subject,
			"body":    draft.Body,
		},
	}
	if draft.ReplyTo != "" {
		req.Fields["replyTo"] = draft.ReplyTo
	}
	if draft.ForwardOf != "" {
		req.Fields["forwardOf"] = draft.ForwardOf
	}
	for _, a := range draft.Attachments {
		req.Files = append(req.Files, File{Field: "attachments", Name: a.Name, Data: a.Data})
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := resp.Decode(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string) ([]models.Contact, error) {
	resp, err := c.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/contacts",
		Query:  url.Values{"q": {query}},
	})
	if err != nil {
		return nil, err
	}
	var contacts []models.Contact
	if err := resp.Decode(&contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// DownloadAttachment returns the raw attachment bytes.
func (c *Client) DownloadAttachment(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/attachments/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
