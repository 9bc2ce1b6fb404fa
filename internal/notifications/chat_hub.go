package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"insureconnect/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

// ChatHub manages websocket connections for direct conversations. Unlike Hub
// (which is user-centric), ChatHub also tracks which chats each user is
// actively viewing so message fan-out stays scoped to participants.
type ChatHub struct {
	mu sync.RWMutex

	// chatID -> set of userIDs currently viewing the chat
	chats map[uint]map[uint]struct{}

	// userID -> set of chatIDs they're actively viewing
	userActiveChats map[uint]map[uint]struct{}

	// userID -> set of active Clients. A user may hold several connections
	// (multiple tabs or devices); every one of them receives chat events.
	userConns map[uint]map[*Client]struct{}

	presence *ConnectionManager
}

// ChatMessage is the envelope broadcast to chat websocket clients.
// Type is one of "message", "typing", "presence", "user_status",
// "connected_users", "error".
type ChatMessage struct {
	Type     string      `json:"type"`
	ChatID   uint        `json:"chat_id,omitempty"`
	UserID   uint        `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Payload  interface{} `json:"payload"`
}

// NewChatHub creates a new ChatHub instance. Pass a Redis client to share
// presence across instances.
func NewChatHub(redisClients ...*redis.Client) *ChatHub {
	var redisClient *redis.Client
	if len(redisClients) > 0 {
		redisClient = redisClients[0]
	}

	h := &ChatHub{
		chats:           make(map[uint]map[uint]struct{}),
		userActiveChats: make(map[uint]map[uint]struct{}),
		userConns:       make(map[uint]map[*Client]struct{}),
	}

	// Online/offline events go through the presence manager so a quick
	// reconnect inside the grace window never broadcasts a status flap.
	h.presence = NewConnectionManager(redisClient, ConnectionManagerConfig{
		OnUserOnline: func(userID uint) {
			h.BroadcastGlobalStatus(userID, "online")
		},
		OnUserOffline: func(userID uint) {
			h.BroadcastGlobalStatus(userID, "offline")
		},
	})

	return h
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// Register creates a client for the connection and attaches it to the hub.
// Returns an error when the per-user connection limit is exceeded.
func (h *ChatHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.RLock()
	atLimit := len(h.userConns[userID]) >= maxConnsPerUser
	h.mu.RUnlock()
	if atLimit {
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	client.OnActivity = func(uid uint) {
		if h.presence != nil {
			h.presence.Touch(context.Background(), uid)
		}
	}

	h.RegisterClient(client)
	return client, nil
}

// RegisterClient attaches an existing client and sends it a snapshot of the
// other users currently online.
func (h *ChatHub) RegisterClient(client *Client) {
	h.mu.Lock()
	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[*Client]struct{})
	}
	h.userConns[client.UserID][client] = struct{}{}

	onlineIDs := make([]uint, 0, len(h.userConns))
	for id := range h.userConns {
		if id != client.UserID {
			onlineIDs = append(onlineIDs, id)
		}
	}
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()

	if len(onlineIDs) > 0 {
		snapshot := ChatMessage{
			Type:    "connected_users",
			Payload: map[string]interface{}{"user_ids": onlineIDs},
		}
		if raw, err := json.Marshal(snapshot); err == nil {
			client.TrySend(raw)
		}
	}

	if h.presence != nil {
		h.presence.Register(context.Background(), client.UserID)
	}
}

// UnregisterClient removes a connection. Once the user's last connection is
// gone their chat subscriptions are dropped and presence begins the offline
// grace countdown.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[client]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	lastConn := len(clients) == 0
	if lastConn {
		delete(h.userConns, client.UserID)
		if active, ok := h.userActiveChats[client.UserID]; ok {
			for chatID := range active {
				if users, ok := h.chats[chatID]; ok {
					delete(users, client.UserID)
					if len(users) == 0 {
						delete(h.chats, chatID)
					}
				}
			}
			delete(h.userActiveChats, client.UserID)
		}
	}
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Dec()

	if h.presence != nil {
		h.presence.Unregister(context.Background(), client.UserID)
	}
}

// IsUserOnline returns true when the user has at least one active chat websocket client.
func (h *ChatHub) IsUserOnline(userID uint) bool {
	if h.presence != nil {
		return h.presence.IsOnline(context.Background(), userID)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// JoinChat subscribes a connected user to a chat's events. Participant
// authorization happens in the websocket handler before this is called.
func (h *ChatHub) JoinChat(userID, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.userConns[userID]; !ok {
		log.Printf("ChatHub: user %d not connected, cannot join chat %d", userID, chatID)
		return
	}

	if h.chats[chatID] == nil {
		h.chats[chatID] = make(map[uint]struct{})
	}
	h.chats[chatID][userID] = struct{}{}

	if h.userActiveChats[userID] == nil {
		h.userActiveChats[userID] = make(map[uint]struct{})
	}
	h.userActiveChats[userID][chatID] = struct{}{}
}

// LeaveChat unsubscribes a user from a chat's events.
func (h *ChatHub) LeaveChat(userID, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if users, ok := h.chats[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.chats, chatID)
		}
	}
	if active, ok := h.userActiveChats[userID]; ok {
		delete(active, chatID)
		if len(active) == 0 {
			delete(h.userActiveChats, userID)
		}
	}
}

// BroadcastToChat sends an event to every connection of every user viewing
// the chat, the originator included. Used for persisted messages, where the
// sender's other devices need the event too.
func (h *ChatHub) BroadcastToChat(chatID uint, message ChatMessage) {
	h.broadcastToChat(chatID, 0, message)
}

// BroadcastToChatExcept sends an event to every user viewing the chat except
// the one it originates from. Typing and presence events use this: the
// originator already knows their own state.
func (h *ChatHub) BroadcastToChatExcept(chatID, exceptUserID uint, message ChatMessage) {
	h.broadcastToChat(chatID, exceptUserID, message)
}

func (h *ChatHub) broadcastToChat(chatID, exceptUserID uint, message ChatMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.chats[chatID]
	if !ok {
		return
	}

	raw, err := json.Marshal(message)
	if err != nil {
		log.Printf("ChatHub: failed to marshal message: %v", err)
		return
	}

	for userID := range users {
		if userID == exceptUserID {
			continue
		}
		if clients, ok := h.userConns[userID]; ok {
			for client := range clients {
				client.TrySend(raw)
			}
		}
	}
}

// ActiveUsers returns the userIDs currently viewing a chat.
func (h *ChatHub) ActiveUsers(chatID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.chats[chatID]
	if !ok {
		return []uint{}
	}
	result := make([]uint, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}

// IsUserActive checks if a user is currently viewing a chat.
func (h *ChatHub) IsUserActive(userID, chatID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if active, ok := h.userActiveChats[userID]; ok {
		_, viewing := active[chatID]
		return viewing
	}
	return false
}

// BroadcastGlobalStatus sends a "user_status" event (online/offline) to every
// connected user except the one it concerns.
func (h *ChatHub) BroadcastGlobalStatus(userID uint, status string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	message := ChatMessage{
		Type:    "user_status",
		UserID:  userID,
		Payload: map[string]interface{}{"status": status, "user_id": userID},
	}

	raw, err := json.Marshal(message)
	if err != nil {
		log.Printf("ChatHub: failed to marshal status message: %v", err)
		return
	}

	for id, clients := range h.userConns {
		if id == userID {
			continue
		}
		for client := range clients {
			client.TrySend(raw)
		}
	}
}

// StartWiring connects the ChatHub to the Redis chat channels so messages
// published by any instance reach the clients connected here.
func (h *ChatHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartChatSubscriber(ctx, func(channel, payload string) {
		var chatID uint
		var msgType string

		if _, err := fmt.Sscanf(channel, "chat:conv:%d", &chatID); err == nil {
			msgType = "message"
		} else if _, err := fmt.Sscanf(channel, "typing:conv:%d", &chatID); err == nil {
			msgType = "typing"
		} else if _, err := fmt.Sscanf(channel, "presence:conv:%d", &chatID); err == nil {
			msgType = "presence"
		} else {
			log.Printf("ChatHub: invalid channel format: %s", channel)
			return
		}

		var message ChatMessage
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			log.Printf("ChatHub: failed to parse message from channel %s: %v", channel, err)
			return
		}
		if message.Type == "" {
			message.Type = msgType
		}
		message.ChatID = chatID

		// Typing and presence never echo back to their originator; persisted
		// messages do, so the sender's other devices stay in sync.
		if msgType == "typing" || msgType == "presence" {
			h.BroadcastToChatExcept(chatID, message.UserID, message)
			return
		}
		h.BroadcastToChat(chatID, message)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *ChatHub) Shutdown(_ context.Context) error {
	if h.presence != nil {
		h.presence.Stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","payload":{"message":"Server is shutting down"}}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.chats = make(map[uint]map[uint]struct{})
	h.userActiveChats = make(map[uint]map[uint]struct{})
	h.userConns = make(map[uint]map[*Client]struct{})

	return nil
}
