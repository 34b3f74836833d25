package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webmail/internal/content"
	"webmail/internal/models"
)

var ErrMalformedEvent = errors.New("malformed realtime event")

var eventKinds = map[models.ServerMessageType]models.EventKind{
	models.ServerMessageTypeNotification: models.EventKindNotification,
	models.ServerMessageTypeConversation: models.EventKindConversationMessage,
	models.ServerMessageTypeDirect:       models.EventKindDirectMessage,
}

// normalize maps a raw server frame to a NotificationEvent.
// Frames of unknown type or shape are rejected with ErrMalformedEvent.
func normalize(data []byte, receivedAt time.Time) (models.NotificationEvent, error) {
	var msg models.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.NotificationEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	kind, ok := eventKinds[msg.Type]
	if !ok {
		return models.NotificationEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, msg.Type)
	}

	return models.NotificationEvent{
		ID:         msg.ID,
		Kind:       kind,
		Payload:    msg.Data,
		Summary:    content.Summary(msg.Data),
		ReceivedAt: receivedAt,
	}, nil
}
