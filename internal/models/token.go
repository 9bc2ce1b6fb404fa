package models

import "time"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	// TransactionPostCreation debits the cost of submitting a post.
	TransactionPostCreation TransactionType = "POST_CREATION"
	// TransactionRefund credits back a rejected post's captured cost.
	TransactionRefund TransactionType = "REFUND"
	// TransactionPurchase credits tokens from an approved token request or signup grant.
	TransactionPurchase TransactionType = "PURCHASE"
	// TransactionFileUpload debits the cost of uploading a file.
	TransactionFileUpload TransactionType = "FILE_UPLOAD"
)

// TokenTransaction is an immutable, append-only ledger entry. The invariant
// maintained by the ledger service: for every user, the sum of Amount over all
// of their rows equals User.TokenBalance.
type TokenTransaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Type        TransactionType `gorm:"type:varchar(20);not null" json:"type"`
	Amount      int             `gorm:"not null" json:"amount"`
	Description string          `gorm:"size:255" json:"description"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"-"`
	PostID      *uint           `gorm:"index" json:"post_id,omitempty"`
	// RequestID deduplicates retries after ambiguous storage failures.
	// Unique when set; a retry with the same key returns the original row.
	RequestID *string   `gorm:"size:36;uniqueIndex" json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenRequestStatus defines the review state of a token purchase request.
type TokenRequestStatus string

const (
	TokenRequestPending  TokenRequestStatus = "pending"
	TokenRequestApproved TokenRequestStatus = "approved"
	TokenRequestRejected TokenRequestStatus = "rejected"
)

// Terminal reports whether no further transition is permitted from s.
func (s TokenRequestStatus) Terminal() bool {
	return s == TokenRequestApproved || s == TokenRequestRejected
}

// TokenRequest is a user-submitted purchase request, resolved exactly once by
// an admin. Approval credits a PURCHASE transaction for Amount.
type TokenRequest struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	Amount          int                `gorm:"not null" json:"amount"`
	Price           float64            `gorm:"not null" json:"price"`
	Description     string             `gorm:"size:255" json:"description"`
	Status          TokenRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	UserID          uint               `gorm:"not null;index" json:"user_id"`
	User            User               `gorm:"foreignKey:UserID" json:"user"`
	ReviewedByID    *uint              `json:"reviewed_by_id,omitempty"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
