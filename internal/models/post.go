package models

import (
	"time"

	"gorm.io/gorm"
)

// PostStatus defines the moderation state of a post.
type PostStatus string

const (
	// PostStatusPending indicates a post is awaiting moderation.
	PostStatusPending PostStatus = "PENDING"
	// PostStatusApproved indicates a post passed moderation and is visible.
	PostStatusApproved PostStatus = "APPROVED"
	// PostStatusRejected indicates a post was declined; its token cost is refunded.
	PostStatusRejected PostStatus = "REJECTED"
)

// Terminal reports whether no further transition is permitted from s.
func (s PostStatus) Terminal() bool {
	return s == PostStatusApproved || s == PostStatusRejected
}

// MaxPostContentLen is the hard limit on post body length.
const MaxPostContentLen = 500

// Post is a member-submitted article. It is created PENDING with its token
// cost captured at creation time; exactly one terminal transition is legal.
type Post struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:200;not null" json:"title"`
	Content         string     `gorm:"size:500;not null" json:"content"`
	Category        string     `gorm:"size:60;not null;index" json:"category"`
	ImageURL        string     `json:"image_url,omitempty"`
	TokenCost       int        `gorm:"not null" json:"token_cost"`
	Status          PostStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	AuthorID        uint       `gorm:"not null;index" json:"author_id"`
	Author          User       `gorm:"foreignKey:AuthorID" json:"author"`
	ReviewedByID    *uint      `json:"reviewed_by_id,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int `gorm:"->" json:"comments_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked     bool           `gorm:"->" json:"liked"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PostLike records that a user liked a post. One row per (user, post).
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_likes_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_likes_user_post" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PostComment is a comment on a post.
type PostComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
