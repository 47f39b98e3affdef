package notify

import (
	"context"

	"github.com/dukerupert/togetherplan/internal/websocket"
)

// Broadcaster pushes notifications to the recipient's open WebSocket connections.
type Broadcaster struct {
	hub *websocket.Hub
}

func NewBroadcaster(hub *websocket.Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

func (b *Broadcaster) Dispatch(_ context.Context, msg Message) {
	b.hub.SendTo(msg.RecipientID, websocket.Message{
		Type:    string(msg.Kind),
		EventID: msg.EventID,
		Title:   msg.Title,
		Data:    msg.Data,
	})
}
