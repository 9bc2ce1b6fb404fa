package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"insureconnect/internal/middleware"
	"insureconnect/internal/models"
	"insureconnect/internal/notifications"
	"insureconnect/internal/observability"
	"insureconnect/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler handles WebSocket connections for notification pushes.
// Delivery is best-effort: every notification is already persisted before it
// reaches this hub, so a missed push is recoverable via GET /notifications.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		if s.hub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket: failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// The handshake is complete; the single-use ticket is spent.
		s.consumeWSTicket(context.Background(), conn.Locals("wsTicket"))

		observability.RecordWebSocketEvent("notification_connect")

		go client.WritePump()
		client.ReadPump()
	})
}

// WebSocketChatHandler handles WebSocket connections for real-time messaging.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket Chat: failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}
		username := user.Name

		if s.chatHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket Chat: failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		s.consumeWSTicket(ctx, conn.Locals("wsTicket"))
		observability.RecordWebSocketEvent("chat_connect")

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incoming map[string]interface{}
			if err := json.Unmarshal(message, &incoming); err != nil {
				log.Printf("WebSocket Chat: invalid message format from user %d", userID)
				return
			}

			msgType, ok := incoming["type"].(string)
			if !ok {
				return
			}
			observability.RecordWebSocketEvent(msgType)

			switch msgType {
			case "join":
				chatID, ok := chatIDFrom(incoming)
				if !ok {
					return
				}
				// Verify participation before joining the room.
				isParticipant, err := s.chatService.IsParticipant(ctx, chatID, userID)
				if err != nil || !isParticipant {
					return
				}
				s.chatHub.JoinChat(userID, chatID)
				s.sendEnvelope(c, notifications.ChatMessage{
					Type:    "joined",
					ChatID:  chatID,
					Payload: map[string]interface{}{"chat_id": chatID},
				})
				// Other viewers of the conversation learn this user arrived;
				// the joiner already knows.
				if perr := s.bridge.PublishPresence(ctx, chatID, userID, username, "online"); perr != nil {
					log.Printf("publish presence error: %v", perr)
				}

			case "leave":
				if chatID, ok := chatIDFrom(incoming); ok {
					s.chatHub.LeaveChat(userID, chatID)
					if perr := s.bridge.PublishPresence(ctx, chatID, userID, username, "offline"); perr != nil {
						log.Printf("publish presence error: %v", perr)
					}
				}

			case "typing":
				chatID, ok := chatIDFrom(incoming)
				if !ok {
					return
				}
				isTyping, _ := incoming["is_typing"].(bool)

				isParticipant, err := s.chatService.IsParticipant(ctx, chatID, userID)
				if err != nil || !isParticipant {
					return
				}

				// Typing indicators are throttled hard; dropping them is fine.
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 10, 10*time.Second)
				if !allowed {
					return
				}

				if perr := s.bridge.PublishTyping(ctx, chatID, userID, username, isTyping); perr != nil {
					log.Printf("publish typing indicator error: %v", perr)
				}

			case "message":
				chatID, ok := chatIDFrom(incoming)
				if !ok {
					return
				}
				content, _ := incoming["content"].(string)
				if content == "" {
					return
				}

				// Same rate limit as the HTTP endpoint.
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "send_chat", id, 15, time.Minute)
				if !allowed {
					s.sendEnvelope(c, notifications.ChatMessage{
						Type: "error",
						Payload: map[string]string{
							"message": "Rate limit exceeded. Please wait a moment.",
						},
					})
					return
				}

				msgType := models.MessageText
				if t, ok := incoming["message_type"].(string); ok && t != "" {
					msgType = models.MessageType(t)
				}

				// SendMessage persists, orders, and publishes; the hub wiring
				// fans the published message back out to this connection too.
				if _, err := s.chatService.SendMessage(ctx, service.SendMessageInput{
					ChatID:   chatID,
					SenderID: userID,
					Content:  content,
					Type:     msgType,
				}); err != nil {
					s.sendEnvelope(c, notifications.ChatMessage{
						Type:    "error",
						ChatID:  chatID,
						Payload: map[string]string{"message": userFacingError(err)},
					})
				}
			}
		}

		s.sendEnvelope(client, notifications.ChatMessage{
			Type:    "connected",
			Payload: map[string]interface{}{"user_id": userID, "username": username},
		})

		go client.WritePump()
		client.ReadPump()
	})
}

// sendEnvelope marshals and best-effort delivers a hub envelope to one client.
func (s *Server) sendEnvelope(c *notifications.Client, msg notifications.ChatMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal websocket envelope error: %v", err)
		return
	}
	c.TrySend(raw)
}

// chatIDFrom extracts the chat id from a decoded websocket payload.
func chatIDFrom(incoming map[string]interface{}) (uint, bool) {
	raw, ok := incoming["chat_id"].(float64)
	if !ok || raw <= 0 {
		return 0, false
	}
	return uint(raw), true
}

// userFacingError maps an error to a message safe to echo over the socket.
func userFacingError(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Failed to send message"
}
