package models

import "time"

// Notification types emitted by the platform.
const (
	NotificationLike         = "like"
	NotificationComment      = "comment"
	NotificationPostApproved = "post_approved"
	NotificationPostRejected = "post_rejected"
	NotificationTokens       = "tokens"
	NotificationMessage      = "message"
)

// Notification is a persisted event addressed to one user. The row is written
// unconditionally; real-time push is best-effort on top of it. Immutable
// except for the read flag.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Type      string    `gorm:"size:40;not null" json:"type"`
	Title     string    `gorm:"size:160;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Read      bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
