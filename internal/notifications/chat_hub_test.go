package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/assert"
)

func newTestClient(userID uint) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, 10),
	}
}

func TestChatHub_RegisterUnregister(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)
	client := newTestClient(1)

	hub.RegisterClient(client)
	hub.mu.RLock()
	assert.Len(t, hub.userConns[1], 1)
	hub.mu.RUnlock()

	hub.UnregisterClient(client)
	hub.mu.RLock()
	assert.Empty(t, hub.userConns[1])
	hub.mu.RUnlock()

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_BroadcastToChat(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)
	client := newTestClient(1)
	hub.RegisterClient(client)
	hub.JoinChat(1, 101)

	hub.BroadcastToChat(101, ChatMessage{
		Type:    "message",
		ChatID:  101,
		Payload: "Hello",
	})

	sentMsg := <-client.Send
	var received ChatMessage
	err := json.Unmarshal(sentMsg, &received)
	assert.NoError(t, err)
	assert.Equal(t, "message", received.Type)
	assert.Equal(t, uint(101), received.ChatID)

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_MultiDeviceSupport(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)
	userID := uint(42)

	client1 := newTestClient(userID)
	client2 := newTestClient(userID)

	hub.RegisterClient(client1)
	hub.RegisterClient(client2)

	hub.mu.RLock()
	assert.Len(t, hub.userConns[userID], 2)
	hub.mu.RUnlock()

	hub.JoinChat(userID, 202)
	hub.BroadcastToChat(202, ChatMessage{Type: "message", ChatID: 202, Payload: "Multi-device test"})

	// Both connections should receive the message
	select {
	case <-client1.Send:
	default:
		t.Error("client1 did not receive message")
	}

	select {
	case <-client2.Send:
	default:
		t.Error("client2 did not receive message")
	}

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_BroadcastToChat_DoesNotSendToNonParticipants(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	participant := newTestClient(1)
	outsider := newTestClient(2)

	hub.RegisterClient(participant)
	hub.RegisterClient(outsider)
	drainMessages(participant.Send)
	drainMessages(outsider.Send)
	hub.JoinChat(1, 404)

	hub.BroadcastToChat(404, ChatMessage{
		Type:    "message",
		ChatID:  404,
		Payload: "Scoped fanout",
	})

	select {
	case <-participant.Send:
	default:
		t.Fatal("participant did not receive message")
	}

	select {
	case <-outsider.Send:
		t.Fatal("non-participant unexpectedly received message")
	default:
	}

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_UnregisterCleanup(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)
	userID := uint(7)
	chatID := uint(303)

	client := newTestClient(userID)
	hub.RegisterClient(client)
	hub.JoinChat(userID, chatID)

	hub.mu.RLock()
	assert.Contains(t, hub.chats[chatID], userID)
	assert.Contains(t, hub.userActiveChats[userID], chatID)
	hub.mu.RUnlock()

	hub.UnregisterClient(client)

	hub.mu.RLock()
	_, userConnExists := hub.userConns[userID]
	_, chatExists := hub.chats[chatID]
	_, activeExists := hub.userActiveChats[userID]
	hub.mu.RUnlock()
	assert.False(t, userConnExists)
	assert.False(t, chatExists)
	assert.False(t, activeExists)

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_ConnectedUsersSnapshotOnRegister(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	first := newTestClient(1)
	hub.RegisterClient(first)

	second := newTestClient(2)
	hub.RegisterClient(second)

	var snapshot struct {
		Type    string `json:"type"`
		Payload struct {
			UserIDs []uint `json:"user_ids"`
		} `json:"payload"`
	}
	raw := <-second.Send
	assert.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, "connected_users", snapshot.Type)
	assert.Equal(t, []uint{1}, snapshot.Payload.UserIDs)

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_GracePeriodSuppressesOfflineOnRapidReconnect(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(40 * time.Millisecond)

	userConnA := newTestClient(1)
	hub.RegisterClient(userConnA)

	hub.UnregisterClient(userConnA)
	time.Sleep(10 * time.Millisecond)
	userConnB := newTestClient(1)
	hub.RegisterClient(userConnB)
	time.Sleep(80 * time.Millisecond)

	hub.presence.mu.RLock()
	notified := hub.presence.offlineNotified[1]
	hub.presence.mu.RUnlock()
	assert.False(t, notified)
	assert.True(t, hub.IsUserOnline(1))

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_MultipleConnections_LastDisconnectTriggersOffline(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(30 * time.Millisecond)

	userConnA := newTestClient(1)
	userConnB := newTestClient(1)

	hub.RegisterClient(userConnA)
	hub.RegisterClient(userConnB)

	hub.UnregisterClient(userConnA)
	time.Sleep(60 * time.Millisecond)
	hub.presence.mu.RLock()
	notified := hub.presence.offlineNotified[1]
	hub.presence.mu.RUnlock()
	assert.False(t, notified)

	hub.UnregisterClient(userConnB)
	assert.Eventually(t, func() bool {
		hub.presence.mu.RLock()
		defer hub.presence.mu.RUnlock()
		return hub.presence.offlineNotified[1]
	}, time.Second, 10*time.Millisecond)
	assert.False(t, hub.IsUserOnline(1))

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_ReaperRemovesStalePresenceAndBroadcastsOffline(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewChatHub(rdb)
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	observer := newTestClient(2)
	observer.Send = make(chan []byte, 20)
	hub.RegisterClient(observer)
	drainMessages(observer.Send)

	ctx := context.Background()
	assert.NoError(t, rdb.SAdd(ctx, defaultPresenceOnlineSetKey, "99").Err())

	hub.presence.reapOnce(ctx)

	assert.True(t, hasOfflineStatus(observer.Send, 99))
	isMember, err := rdb.SIsMember(ctx, defaultPresenceOnlineSetKey, "99").Result()
	assert.NoError(t, err)
	assert.False(t, isMember)

	_ = hub.Shutdown(context.Background())
}

func drainMessages(ch <-chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func hasOfflineStatus(ch <-chan []byte, userID uint) bool {
	found := false
	for {
		select {
		case raw := <-ch:
			var msg struct {
				Type    string `json:"type"`
				Payload struct {
					Status string `json:"status"`
					UserID uint   `json:"user_id"`
				} `json:"payload"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.Type == "user_status" && msg.Payload.Status == "offline" && msg.Payload.UserID == userID {
				found = true
			}
		default:
			return found
		}
	}
}

func TestChatHub_BroadcastToChatExceptSkipsOriginator(t *testing.T) {
	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	originator := newTestClient(1)
	other := newTestClient(2)
	hub.RegisterClient(originator)
	hub.RegisterClient(other)
	drainMessages(originator.Send)
	drainMessages(other.Send)
	hub.JoinChat(1, 101)
	hub.JoinChat(2, 101)

	hub.BroadcastToChatExcept(101, 1, ChatMessage{
		Type:    "typing",
		ChatID:  101,
		UserID:  1,
		Payload: map[string]interface{}{"is_typing": true},
	})

	select {
	case <-other.Send:
	default:
		t.Fatal("other viewer did not receive the event")
	}
	select {
	case <-originator.Send:
		t.Fatal("event echoed back to its originator")
	default:
	}

	_ = hub.Shutdown(context.Background())
}

// End-to-end through Redis: a typing indicator published by the notifier must
// arrive at the other viewer with its is_typing state intact, and must never
// echo back to the typist.
func TestChatHub_TypingRelayPreservesStateAndSkipsTypist(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	typist := newTestClient(3)
	reader := newTestClient(4)
	reader.Send = make(chan []byte, 20)
	hub.RegisterClient(typist)
	hub.RegisterClient(reader)
	drainMessages(typist.Send)
	drainMessages(reader.Send)
	hub.JoinChat(3, 7)
	hub.JoinChat(4, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(rdb)
	assert.NoError(t, hub.StartWiring(ctx, n))

	type typingEvent struct {
		Type     string `json:"type"`
		ChatID   uint   `json:"chat_id"`
		UserID   uint   `json:"user_id"`
		Username string `json:"username"`
		Payload  struct {
			IsTyping bool `json:"is_typing"`
		} `json:"payload"`
	}

	// The subscriber attaches asynchronously; republish until the first
	// indicator lands.
	var start typingEvent
	assert.Eventually(t, func() bool {
		assert.NoError(t, n.PublishTypingIndicator(ctx, 7, 3, "alex", true))
		select {
		case raw := <-reader.Send:
			assert.NoError(t, json.Unmarshal(raw, &start))
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "typing", start.Type)
	assert.Equal(t, uint(7), start.ChatID)
	assert.Equal(t, uint(3), start.UserID)
	assert.Equal(t, "alex", start.Username)
	assert.True(t, start.Payload.IsTyping)

	// A stop must arrive distinguishable from a start.
	assert.NoError(t, n.PublishTypingIndicator(ctx, 7, 3, "alex", false))
	assert.Eventually(t, func() bool {
		select {
		case raw := <-reader.Send:
			var ev typingEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return false
			}
			return ev.Type == "typing" && !ev.Payload.IsTyping
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	// The typist heard nothing about their own typing.
	select {
	case raw := <-typist.Send:
		t.Fatalf("typing indicator echoed back to the typist: %s", raw)
	default:
	}

	_ = hub.Shutdown(context.Background())
}

func TestChatHub_PresenceRelayExcludesSubject(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewChatHub()
	hub.presence.SetOfflineGracePeriod(20 * time.Millisecond)

	subject := newTestClient(5)
	observer := newTestClient(6)
	observer.Send = make(chan []byte, 20)
	hub.RegisterClient(subject)
	hub.RegisterClient(observer)
	drainMessages(subject.Send)
	drainMessages(observer.Send)
	hub.JoinChat(5, 9)
	hub.JoinChat(6, 9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(rdb)
	assert.NoError(t, hub.StartWiring(ctx, n))

	var got ChatMessage
	assert.Eventually(t, func() bool {
		assert.NoError(t, n.PublishPresence(ctx, 9, 5, "casey", "online"))
		select {
		case raw := <-observer.Send:
			assert.NoError(t, json.Unmarshal(raw, &got))
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "presence", got.Type)
	assert.Equal(t, uint(9), got.ChatID)
	assert.Equal(t, uint(5), got.UserID)

	select {
	case raw := <-subject.Send:
		t.Fatalf("presence change echoed back to its subject: %s", raw)
	default:
	}

	_ = hub.Shutdown(context.Background())
}
