package repository

import (
	"context"
	"errors"

	"insureconnect/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	// EnsureDirect returns the 1:1 chat between a and b, creating it if
	// missing. The unique participant key makes concurrent creations from
	// both sides converge on one row.
	EnsureDirect(ctx context.Context, a, b uint) (*models.Chat, error)
	GetByID(ctx context.Context, id uint) (*models.Chat, error)
	GetUserChats(ctx context.Context, userID uint) ([]*models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID uint) (bool, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, chatID uint, limit, offset int) ([]*models.Message, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) EnsureDirect(ctx context.Context, a, b uint) (*models.Chat, error) {
	if a == b {
		return nil, models.NewValidationError("Cannot start a conversation with yourself")
	}
	key := models.DirectChatKey(a, b)

	chat := models.Chat{ParticipantKey: key}
	// DoNothing on conflict; the follow-up lookup returns whichever row won.
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "participant_key"}}, DoNothing: true}).
		Create(&chat).Error; err != nil {
		return nil, models.NewTransientStorageError(err)
	}

	var existing models.Chat
	if err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("participant_key = ?", key).
		First(&existing).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	if len(existing.Participants) == 0 {
		for _, uid := range []uint{a, b} {
			p := models.ChatParticipant{ChatID: existing.ID, UserID: uid}
			if err := r.db.WithContext(ctx).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&p).Error; err != nil {
				return nil, models.NewTransientStorageError(err)
			}
		}
		if err := r.db.WithContext(ctx).
			Preload("Participants.User").
			First(&existing, existing.ID).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	return &existing, nil
}

func (r *chatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		First(&chat, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Chat", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &chat, nil
}

func (r *chatRepository) GetUserChats(ctx context.Context, userID uint) ([]*models.Chat, error) {
	var chats []*models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_participants cp ON chats.id = cp.chat_id").
		Where("cp.user_id = ?", userID).
		Preload("Participants.User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC").Limit(1)
		}).
		Preload("Messages.Sender").
		Order("chats.updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return chats, nil
}

func (r *chatRepository) IsParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		// Bump chat activity so the conversation list orders by recency.
		return tx.Model(&models.Chat{}).
			Where("id = ?", msg.ChatID).
			UpdateColumn("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		return models.NewTransientStorageError(err)
	}
	return nil
}

func (r *chatRepository) GetMessages(ctx context.Context, chatID uint, limit, offset int) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Preload("Sender").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	// Reverse messages to return them in chronological order (oldest -> newest)
	// We fetched DESC to get the *latest* messages, but client expects ASC
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
