package service

import (
	"context"
	"strings"
	"sync"

	"insureconnect/internal/models"
	"insureconnect/internal/observability"
	"insureconnect/internal/repository"
)

// MessagePublisher broadcasts a persisted message to the chat's connected
// participants.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, chatID uint, msg *models.Message) error
}

const maxMessageLen = 4000

// chatLockStripes bounds the lock table; chats hash onto a fixed set of stripes.
const chatLockStripes = 64

// ChatService handles 1:1 conversations. Persist-then-publish under a
// per-chat lock keeps broadcast order identical to storage order.
type ChatService struct {
	chatRepo  repository.ChatRepository
	userRepo  repository.UserRepository
	publisher MessagePublisher
	locks     [chatLockStripes]sync.Mutex
}

// SendMessageInput is the payload for sending one chat message.
type SendMessageInput struct {
	ChatID   uint
	SenderID uint
	Content  string
	Type     models.MessageType
}

func NewChatService(chatRepo repository.ChatRepository, userRepo repository.UserRepository, publisher MessagePublisher) *ChatService {
	return &ChatService{
		chatRepo:  chatRepo,
		userRepo:  userRepo,
		publisher: publisher,
	}
}

func (s *ChatService) lockFor(chatID uint) *sync.Mutex {
	return &s.locks[chatID%chatLockStripes]
}

// StartConversation returns the 1:1 chat between the two users, creating it
// if needed. Both sides calling concurrently get the same chat.
func (s *ChatService) StartConversation(ctx context.Context, userID, otherID uint) (*models.Chat, error) {
	if _, err := s.userRepo.GetByID(ctx, otherID); err != nil {
		return nil, err
	}
	return s.chatRepo.EnsureDirect(ctx, userID, otherID)
}

// Conversations lists the user's chats ordered by most recent activity.
func (s *ChatService) Conversations(ctx context.Context, userID uint) ([]*models.Chat, error) {
	return s.chatRepo.GetUserChats(ctx, userID)
}

// Messages returns a page of chat history in chronological order. Only
// participants may read.
func (s *ChatService) Messages(ctx context.Context, chatID, userID uint, limit, offset int) ([]*models.Message, error) {
	ok, err := s.chatRepo.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewForbiddenError("Not a participant of this conversation")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.chatRepo.GetMessages(ctx, chatID, limit, offset)
}

// SendMessage persists the message and broadcasts it. The per-chat lock
// serializes concurrent senders so every participant observes messages in
// the persisted order.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxMessageLen {
		return nil, models.NewValidationError("Message too long")
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() {
		return nil, models.NewValidationError("Invalid message type")
	}

	chat, err := s.chatRepo.GetByID(ctx, in.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(in.SenderID) {
		return nil, models.NewForbiddenError("Not a participant of this conversation")
	}

	msg := &models.Message{
		ChatID:   in.ChatID,
		SenderID: in.SenderID,
		Content:  content,
		Type:     msgType,
	}
	if other := chat.OtherParticipant(in.SenderID); other != nil {
		msg.ReceiverID = &other.UserID
	}

	lock := s.lockFor(in.ChatID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	observability.RecordChatMessage(string(msgType))

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, in.ChatID, msg); err != nil {
			observability.RecordErrorInContext(ctx, err)
		}
	}

	return msg, nil
}

// IsParticipant reports whether the user belongs to the chat. Used by the
// gateway to gate room joins.
func (s *ChatService) IsParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	return s.chatRepo.IsParticipant(ctx, chatID, userID)
}
