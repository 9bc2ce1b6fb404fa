package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const broadcastChannel = "notifications:broadcast"

// Notifier provides helpers to publish notification and chat events into
// Redis channels. A nil Redis client turns every publish into a no-op so the
// API keeps working in single-instance or test setups.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Active reports whether publishes actually reach Redis. Callers holding a
// local hub fall back to direct broadcast when it returns false.
func (n *Notifier) Active() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(
	ctx context.Context, userID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishBroadcast sends a notification payload to all connected users.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, broadcastChannel, payload).Err()
}

// PublishChatMessage publishes a chat message to a conversation channel.
func (n *Notifier) PublishChatMessage(
	ctx context.Context, chatID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ConversationChannel(chatID), payload).Err()
}

// PublishTypingIndicator publishes a typing indicator to a conversation. The
// full hub envelope goes over the wire so subscribing instances fan it out
// without reshaping it; is_typing distinguishes start from stop. Receivers
// drop the indicator after expires_in_ms without a refresh.
func (n *Notifier) PublishTypingIndicator(
	ctx context.Context, chatID, userID uint, username string, isTyping bool,
) error {
	if n.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(TypingEnvelope(chatID, userID, username, isTyping))
	if err != nil {
		return fmt.Errorf("marshal typing envelope: %w", err)
	}
	return n.rdb.Publish(ctx, TypingChannel(chatID), string(raw)).Err()
}

// PublishPresence publishes a user's presence status to a conversation.
func (n *Notifier) PublishPresence(
	ctx context.Context, chatID, userID uint, username, status string,
) error {
	if n.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(PresenceEnvelope(chatID, userID, username, status))
	if err != nil {
		return fmt.Errorf("marshal presence envelope: %w", err)
	}
	return n.rdb.Publish(ctx, PresenceChannel(chatID), string(raw)).Err()
}

// TypingEnvelope builds the hub envelope for a typing indicator.
func TypingEnvelope(chatID, userID uint, username string, isTyping bool) ChatMessage {
	return ChatMessage{
		Type:     "typing",
		ChatID:   chatID,
		UserID:   userID,
		Username: username,
		Payload: map[string]interface{}{
			"is_typing":     isTyping,
			"expires_in_ms": 5000,
		},
	}
}

// PresenceEnvelope builds the hub envelope for a per-conversation presence
// change. Status is "online" or "offline".
func PresenceEnvelope(chatID, userID uint, username, status string) ChatMessage {
	return ChatMessage{
		Type:     "presence",
		ChatID:   chatID,
		UserID:   userID,
		Username: username,
		Payload:  map[string]interface{}{"status": status},
	}
}

// StartPatternSubscriber subscribes to the notification channels and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.subscribe(ctx, "PatternSubscriber", onMessage,
		"notifications:user:*", broadcastChannel)
}

// StartChatSubscriber subscribes to chat-related patterns and calls onMessage
// for each incoming message. Subscribes to: chat:conv:*, typing:conv:*, presence:conv:*
func (n *Notifier) StartChatSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.subscribe(ctx, "ChatSubscriber", onMessage,
		"chat:conv:*", "typing:conv:*", "presence:conv:*")
}

func (n *Notifier) subscribe(
	ctx context.Context, name string, onMessage func(channel string, payload string), patterns ...string,
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, patterns...)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(chatID uint) string {
	return "chat:conv:" + strconv.FormatUint(uint64(chatID), 10)
}

// TypingChannel derives the Redis channel name for a conversation's typing
// indicators.
func TypingChannel(chatID uint) string {
	return "typing:conv:" + strconv.FormatUint(uint64(chatID), 10)
}

// PresenceChannel derives the Redis channel name for a conversation's
// presence changes.
func PresenceChannel(chatID uint) string {
	return "presence:conv:" + strconv.FormatUint(uint64(chatID), 10)
}
