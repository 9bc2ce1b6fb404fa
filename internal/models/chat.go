package models

import (
	"fmt"
	"time"
)

// MessageType classifies a chat message payload.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageFile  MessageType = "FILE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// Chat is a 1:1 conversation. ParticipantKey is the deterministic composite
// key over the sorted pair of participant ids; its unique index makes
// concurrent "start conversation" calls from both sides converge on one row
// instead of racing a scan-and-compare lookup.
type Chat struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ParticipantKey string            `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Participants   []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants"`
	Messages       []Message         `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	// UpdatedAt tracks last activity and orders the conversation list.
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectChatKey derives the canonical participant-pair key for a 1:1 chat.
func DirectChatKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ChatParticipant ties a user to a chat.
type ChatParticipant struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	ChatID uint `gorm:"not null;uniqueIndex:idx_chat_participants_chat_user" json:"chat_id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_chat_participants_chat_user;index" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"user"`
}

// Message is an append-only chat message.
type Message struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ChatID     uint        `gorm:"not null;index" json:"chat_id"`
	SenderID   uint        `gorm:"not null;index" json:"sender_id"`
	Sender     *User       `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReceiverID *uint       `json:"receiver_id,omitempty"`
	Content    string      `gorm:"type:text;not null" json:"content"`
	Type       MessageType `gorm:"type:varchar(10);not null;default:'TEXT'" json:"type"`
	CreatedAt  time.Time   `gorm:"index" json:"created_at"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID, if any.
func (c *Chat) OtherParticipant(userID uint) *ChatParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}
