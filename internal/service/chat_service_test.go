package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
	"insureconnect/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// publishRecorder records broadcast messages in publish order.
type publishRecorder struct {
	mu        sync.Mutex
	published []*models.Message
}

func (r *publishRecorder) PublishMessage(_ context.Context, _ uint, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, msg)
	return nil
}

func newChatService(db *gorm.DB) (*ChatService, *publishRecorder) {
	recorder := &publishRecorder{}
	svc := NewChatService(repository.NewChatRepository(db), repository.NewUserRepository(db), recorder)
	return svc, recorder
}

func TestStartConversationConverges(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newChatService(db)
	alice := seedUser(t, db, "alice", 0)
	bob := seedUser(t, db, "bob", 0)

	first, err := svc.StartConversation(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)
	second, err := svc.StartConversation(t.Context(), bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Participants, 2)

	_, err = svc.StartConversation(t.Context(), alice.ID, alice.ID)
	require.Error(t, err, "self conversations are rejected")

	_, err = svc.StartConversation(t.Context(), alice.ID, 9999)
	require.Error(t, err, "unknown counterpart is rejected")
}

func TestSendMessagePersistsThenPublishes(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, recorder := newChatService(db)
	alice := seedUser(t, db, "ann", 0)
	bob := seedUser(t, db, "ben", 0)
	mallory := seedUser(t, db, "mallory", 0)

	chat, err := svc.StartConversation(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)

	contents := []string{"hello", "how are you", "fine thanks"}
	for i, content := range contents {
		sender := alice.ID
		if i%2 == 1 {
			sender = bob.ID
		}
		msg, err := svc.SendMessage(t.Context(), SendMessageInput{
			ChatID:   chat.ID,
			SenderID: sender,
			Content:  content,
		})
		require.NoError(t, err)
		assert.Equal(t, models.MessageText, msg.Type)
		require.NotNil(t, msg.ReceiverID)
	}

	// Broadcast order matches storage order.
	require.Len(t, recorder.published, 3)
	stored, err := svc.Messages(t.Context(), chat.ID, alice.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i := range stored {
		assert.Equal(t, contents[i], stored[i].Content)
		assert.Equal(t, recorder.published[i].ID, stored[i].ID)
	}

	// Outsiders can neither read nor write.
	_, err = svc.Messages(t.Context(), chat.ID, mallory.ID, 50, 0)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	_, err = svc.SendMessage(t.Context(), SendMessageInput{
		ChatID:   chat.ID,
		SenderID: mallory.ID,
		Content:  "let me in",
	})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)
}

func TestSendMessageValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, recorder := newChatService(db)
	alice := seedUser(t, db, "ada", 0)
	bob := seedUser(t, db, "bill", 0)

	chat, err := svc.StartConversation(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)

	for _, content := range []string{"", "   ", strings.Repeat("x", maxMessageLen+1)} {
		_, err := svc.SendMessage(t.Context(), SendMessageInput{
			ChatID:   chat.ID,
			SenderID: alice.ID,
			Content:  content,
		})
		require.Error(t, err)
	}

	_, err = svc.SendMessage(t.Context(), SendMessageInput{
		ChatID:   chat.ID,
		SenderID: alice.ID,
		Content:  "valid",
		Type:     models.MessageType("CARRIER_PIGEON"),
	})
	require.Error(t, err, "unknown message types are rejected")

	assert.Empty(t, recorder.published, "nothing invalid may be broadcast")
}
