package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// User is the profile returned by the backend on login.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type RefreshResponse struct {
	Token string `json:"token"`
}

// Folder is one of the mailbox views.
type Folder string

const (
	FolderInbox    Folder = "inbox"
	FolderSent     Folder = "sent"
	FolderDrafts   Folder = "drafts"
	FolderStarred  Folder = "starred"
	FolderArchived Folder = "archived"
	FolderTrash    Folder = "trash"
)

var Folders = []Folder{FolderInbox, FolderSent, FolderDrafts, FolderStarred, FolderArchived, FolderTrash}

func (f Folder) Valid() bool {
	for _, known := range Folders {
		if f == known {
			return true
		}
	}
	return false
}

// Conversation is a mail thread as listed in a folder.
type Conversation struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Participants []Contact `json:"participants"`
	Snippet      string    `json:"snippet"`
	Unread       bool      `json:"unread"`
	Starred      bool      `json:"starred"`
	UpdatedAt    int64     `json:"updatedAt"` // Unix timestamp (seconds)
	Messages     []Message `json:"messages,omitempty"`
}

// Message is a single mail inside a conversation.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	From           Contact      `json:"from"`
	To             []Contact    `json:"to"`
	Subject        string       `json:"subject"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	SentAt         int64        `json:"sentAt"` // Unix timestamp (seconds)
}

type Contact struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Draft is an outgoing message, new or in reply to/forwarding an existing one.
type Draft struct {
	To          []string
	Subject     string
	Body        string
	ReplyTo     string
	ForwardOf   string
	Attachments []DraftAttachment
}

type DraftAttachment struct {
	Name string
	Data []byte
}

// ServerMessage is the raw frame pushed by the backend over the realtime stream.
type ServerMessage struct {
	Type ServerMessageType `json:"type"`
	ID   string            `json:"id,omitempty"`
	Data json.RawMessage   `json:"data,omitempty"`
}

type ServerMessageType string

const (
	ServerMessageTypeNotification ServerMessageType = "notification"
	ServerMessageTypeConversation ServerMessageType = "conversation_message"
	ServerMessageTypeDirect       ServerMessageType = "direct_message"
)

// ClientMessage is sent by the client over the realtime stream.
type ClientMessage struct {
	Type ClientMessageType `json:"type"`
}

type ClientMessageType string

const (
	ClientMessageTypeSubscribe ClientMessageType = "subscribe"
)

type EventKind string

const (
	EventKindNotification        EventKind = "notification"
	EventKindConversationMessage EventKind = "conversationMessage"
	EventKindDirectMessage       EventKind = "directMessage"
)

// NotificationEvent is a normalized inbound push message.
// It is never mutated once appended to an event log.
type NotificationEvent struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id,omitempty"`
	Kind       EventKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Summary    string          `json:"summary,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// ConnectionStatus is the state of the realtime link.
type ConnectionStatus string

const (
	StatusDisconnected     ConnectionStatus = "disconnected"
	StatusConnecting       ConnectionStatus = "connecting"
	StatusConnected        ConnectionStatus = "connected"
	StatusReconnecting     ConnectionStatus = "reconnecting"
	StatusFailed           ConnectionStatus = "failed"
	StatusNotAuthenticated ConnectionStatus = "notAuthenticated"
)

// StatusChange is reported to status observers. Restored is set when the
// channel reached Connected after having been Reconnecting.
type StatusChange struct {
	Status   ConnectionStatus
	Restored bool
}
