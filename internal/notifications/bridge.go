package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"insureconnect/internal/models"
)

// Bridge adapts the Notifier to the push interfaces the service layer
// depends on. Services stay unaware of Redis channel naming and the
// websocket envelope format.
//
// With Redis, every publish goes through pub/sub so all instances see it.
// Without Redis the Bridge hands events straight to the local hubs, so a
// single-instance deployment keeps real-time delivery.
type Bridge struct {
	notifier *Notifier
	hub      *Hub
	chatHub  *ChatHub
}

// NewBridge wraps a Notifier for use by the service layer. The hubs are the
// local delivery path used when the Notifier has no Redis client; either may
// be nil when that fallback is not wanted.
func NewBridge(notifier *Notifier, hub *Hub, chatHub *ChatHub) *Bridge {
	return &Bridge{notifier: notifier, hub: hub, chatHub: chatHub}
}

// PushNotification publishes a persisted notification to the owner's channel.
func (b *Bridge) PushNotification(ctx context.Context, userID uint, n *models.Notification) error {
	envelope := map[string]interface{}{
		"type":    "notification",
		"payload": n,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if !b.notifier.Active() {
		if b.hub != nil {
			b.hub.Broadcast(userID, string(raw))
		}
		return nil
	}
	return b.notifier.PublishUser(ctx, userID, string(raw))
}

// PublishMessage publishes a persisted chat message to its conversation
// channel. Hubs on every instance fan it out to connected participants.
func (b *Bridge) PublishMessage(ctx context.Context, chatID uint, msg *models.Message) error {
	envelope := ChatMessage{
		Type:    "message",
		ChatID:  chatID,
		UserID:  msg.SenderID,
		Payload: msg,
	}
	if !b.notifier.Active() {
		if b.chatHub != nil {
			b.chatHub.BroadcastToChat(chatID, envelope)
		}
		return nil
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	return b.notifier.PublishChatMessage(ctx, chatID, string(raw))
}

// PublishTyping relays a typing indicator to the conversation's other
// viewers. The originator never receives their own indicator.
func (b *Bridge) PublishTyping(ctx context.Context, chatID, userID uint, username string, isTyping bool) error {
	if !b.notifier.Active() {
		if b.chatHub != nil {
			b.chatHub.BroadcastToChatExcept(chatID, userID, TypingEnvelope(chatID, userID, username, isTyping))
		}
		return nil
	}
	return b.notifier.PublishTypingIndicator(ctx, chatID, userID, username, isTyping)
}

// PublishPresence relays a per-conversation presence change to the other
// viewers.
func (b *Bridge) PublishPresence(ctx context.Context, chatID, userID uint, username, status string) error {
	if !b.notifier.Active() {
		if b.chatHub != nil {
			b.chatHub.BroadcastToChatExcept(chatID, userID, PresenceEnvelope(chatID, userID, username, status))
		}
		return nil
	}
	return b.notifier.PublishPresence(ctx, chatID, userID, username, status)
}
