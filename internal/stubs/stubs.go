package stubs

import (
	"encoding/base64"
	"time"

	"webmail/internal/models"
)

// Account is a login known to the fake backend.
type Account struct {
	Username string
	Password string
	User     models.User
}

var Accounts = []Account{
	{Username: "alice", Password: "alice-password", User: models.User{ID: "1", Email: "alice@example.com", DisplayName: "Alice", AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice"}},
	{Username: "bob", Password: "bob-password", User: models.User{ID: "2", Email: "bob@example.com", DisplayName: "Bob", AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Bob"}},
}

var Contacts = []models.Contact{
	{ID: "1", Name: "Alice", Email: "alice@example.com"},
	{ID: "2", Name: "Bob", Email: "bob@example.com"},
	{ID: "3", Name: "Charlie", Email: "charlie@example.com"},
}

// PixelPNG is a 1x1 transparent PNG.
var PixelPNG, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

var Attachments = map[string][]byte{
	"att-1": PixelPNG,
}

// Folders maps each folder to the conversations it lists.
var Folders = map[models.Folder][]models.Conversation{
	models.FolderInbox: {
		{
			ID:           "c1",
			Subject:      "Quarterly report",
			Participants: []models.Contact{Contacts[1], Contacts[0]},
			Snippet:      "Numbers attached.",
			Unread:       true,
			UpdatedAt:    time.Now().Add(-1 * time.Hour).Unix(),
			Messages: []models.Message{
				{
					ID:             "m1",
					ConversationID: "c1",
					From:           Contacts[1],
					To:             []models.Contact{Contacts[0]},
					Subject:        "Quarterly report",
					Body:           "Numbers attached.",
					Attachments:    []models.Attachment{{ID: "att-1", Name: "chart.png", MimeType: "image/png", Size: int64(len(PixelPNG))}},
					SentAt:         time.Now().Add(-1 * time.Hour).Unix(),
				},
			},
		},
		{
			ID:           "c2",
			Subject:      "Lunch?",
			Participants: []models.Contact{Contacts[2], Contacts[0]},
			Snippet:      "Thai place at noon",
			UpdatedAt:    time.Now().Add(-3 * time.Hour).Unix(),
		},
	},
	models.FolderSent: {
		{
			ID:           "c3",
			Subject:      "Re: Offsite",
			Participants: []models.Contact{Contacts[0], Contacts[1]},
			Snippet:      "Count me in.",
			UpdatedAt:    time.Now().Add(-24 * time.Hour).Unix(),
		},
	},
}
