package notifications

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"insureconnect/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), 1, "payload"))
	assert.NoError(t, n.PublishBroadcast(context.Background(), "payload"))
	assert.NoError(t, n.PublishChatMessage(context.Background(), 1, "payload"))
	assert.NoError(t, n.PublishTypingIndicator(context.Background(), 1, 2, "alex", true))
	assert.NoError(t, n.PublishPresence(context.Background(), 1, 2, "alex", "online"))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "notifications:user:1"},
		{100, "notifications:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
	}
}

func TestConversationChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "chat:conv:5", ConversationChannel(5))
}

func TestNotifier_ChatSubscriberReceivesTypingAndMessages(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := make(chan string, 4)
	require.NoError(t, n.StartChatSubscriber(ctx, func(channel, _ string) {
		channels <- channel
	}))

	require.NoError(t, n.PublishChatMessage(context.Background(), 7, `{"type":"message"}`))
	require.NoError(t, n.PublishTypingIndicator(context.Background(), 7, 3, "alex", true))

	seen := map[string]bool{}
	assert.Eventually(t, func() bool {
		for {
			select {
			case ch := <-channels:
				seen[ch] = true
			default:
				return seen["chat:conv:7"] && seen["typing:conv:7"]
			}
		}
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, _ string) {
		atomic.AddInt32(&received, 1)
	}))

	require.NoError(t, n.PublishUser(context.Background(), 1, "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	before := atomic.LoadInt32(&received)

	require.NoError(t, n.PublishUser(context.Background(), 1, "after-cancel"))
	assert.Never(t, func() bool {
		return atomic.LoadInt32(&received) > before
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestBridge_PushNotificationEnvelope(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	sub := rdb.Subscribe(context.Background(), UserChannel(9))
	defer func() { _ = sub.Close() }()
	// Wait for the subscription to be active before publishing.
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	bridge := NewBridge(NewNotifier(rdb), nil, nil)
	require.NoError(t, bridge.PushNotification(context.Background(), 9, &models.Notification{
		ID:     42,
		UserID: 9,
		Type:   models.NotificationPostApproved,
		Title:  "Post approved",
	}))

	select {
	case msg := <-sub.Channel():
		var envelope struct {
			Type    string              `json:"type"`
			Payload models.Notification `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
		assert.Equal(t, "notification", envelope.Type)
		assert.Equal(t, uint(42), envelope.Payload.ID)
		assert.Equal(t, models.NotificationPostApproved, envelope.Payload.Type)
	case <-time.After(time.Second):
		t.Fatal("did not receive published notification")
	}
}

func TestBridge_PublishMessageEnvelope(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	sub := rdb.Subscribe(context.Background(), ConversationChannel(12))
	defer func() { _ = sub.Close() }()
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	bridge := NewBridge(NewNotifier(rdb), nil, nil)
	require.NoError(t, bridge.PublishMessage(context.Background(), 12, &models.Message{
		ID:       5,
		ChatID:   12,
		SenderID: 3,
		Content:  "hello",
		Type:     models.MessageText,
	}))

	select {
	case msg := <-sub.Channel():
		var envelope ChatMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
		assert.Equal(t, "message", envelope.Type)
		assert.Equal(t, uint(12), envelope.ChatID)
		assert.Equal(t, uint(3), envelope.UserID)
	case <-time.After(time.Second):
		t.Fatal("did not receive published message")
	}
}

func TestNotifier_TypingPayloadCarriesIndicatorState(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	sub := rdb.Subscribe(context.Background(), TypingChannel(7))
	defer func() { _ = sub.Close() }()
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	n := NewNotifier(rdb)
	require.NoError(t, n.PublishTypingIndicator(context.Background(), 7, 3, "alex", true))
	require.NoError(t, n.PublishTypingIndicator(context.Background(), 7, 3, "alex", false))

	// Both states must survive the wire as distinct events; a stop that
	// arrives as a start leaves the indicator stuck on the receiver.
	for _, want := range []bool{true, false} {
		select {
		case msg := <-sub.Channel():
			var envelope struct {
				Type     string `json:"type"`
				ChatID   uint   `json:"chat_id"`
				UserID   uint   `json:"user_id"`
				Username string `json:"username"`
				Payload  struct {
					IsTyping    bool `json:"is_typing"`
					ExpiresInMs int  `json:"expires_in_ms"`
				} `json:"payload"`
			}
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
			assert.Equal(t, "typing", envelope.Type)
			assert.Equal(t, uint(7), envelope.ChatID)
			assert.Equal(t, uint(3), envelope.UserID)
			assert.Equal(t, "alex", envelope.Username)
			assert.Equal(t, want, envelope.Payload.IsTyping)
			assert.Equal(t, 5000, envelope.Payload.ExpiresInMs)
		case <-time.After(time.Second):
			t.Fatalf("did not receive typing indicator (is_typing=%v)", want)
		}
	}
}

func TestBridge_NilRedisDeliversThroughLocalHubs(t *testing.T) {
	hub := NewHub()
	chatHub := NewChatHub()
	chatHub.presence.SetOfflineGracePeriod(20 * time.Millisecond)
	defer func() {
		_ = hub.Shutdown(context.Background())
		_ = chatHub.Shutdown(context.Background())
	}()

	recipient := newTestClient(9)
	hub.mu.Lock()
	hub.conns[9] = map[*Client]struct{}{recipient: {}}
	hub.totalConns++
	hub.mu.Unlock()

	sender := newTestClient(3)
	viewer := newTestClient(4)
	chatHub.RegisterClient(sender)
	chatHub.RegisterClient(viewer)
	drainMessages(sender.Send)
	drainMessages(viewer.Send)
	chatHub.JoinChat(3, 12)
	chatHub.JoinChat(4, 12)

	bridge := NewBridge(NewNotifier(nil), hub, chatHub)
	ctx := context.Background()

	require.NoError(t, bridge.PushNotification(ctx, 9, &models.Notification{
		ID: 42, UserID: 9, Type: models.NotificationPostApproved, Title: "Post approved",
	}))
	select {
	case raw := <-recipient.Send:
		var envelope struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, "notification", envelope.Type)
	default:
		t.Fatal("notification did not reach the local hub without Redis")
	}

	// Persisted messages reach every viewer, the sender's devices included.
	require.NoError(t, bridge.PublishMessage(ctx, 12, &models.Message{
		ID: 5, ChatID: 12, SenderID: 3, Content: "hello", Type: models.MessageText,
	}))
	for _, c := range []*Client{sender, viewer} {
		select {
		case raw := <-c.Send:
			var envelope ChatMessage
			require.NoError(t, json.Unmarshal(raw, &envelope))
			assert.Equal(t, "message", envelope.Type)
			assert.Equal(t, uint(3), envelope.UserID)
		default:
			t.Fatalf("chat message did not reach user %d without Redis", c.UserID)
		}
	}

	// Typing goes to the other viewer only.
	require.NoError(t, bridge.PublishTyping(ctx, 12, 3, "alex", true))
	select {
	case raw := <-viewer.Send:
		var envelope ChatMessage
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, "typing", envelope.Type)
	default:
		t.Fatal("typing indicator did not reach the other viewer without Redis")
	}
	select {
	case <-sender.Send:
		t.Fatal("typing indicator echoed back to its originator")
	default:
	}

	require.NoError(t, bridge.PublishPresence(ctx, 12, 3, "alex", "online"))
	select {
	case raw := <-viewer.Send:
		var envelope ChatMessage
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, "presence", envelope.Type)
	default:
		t.Fatal("presence change did not reach the other viewer without Redis")
	}
}
