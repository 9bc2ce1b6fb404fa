// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is an ordered privilege tier. Comparisons go through HasAtLeast so
// privilege checks stay centralized instead of being re-derived per call site.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
	RoleAdmin    Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleCustomer: 0,
	RoleAgent:    1,
	RoleAdmin:    2,
}

// HasAtLeast reports whether r carries at least the privileges of required.
// Unknown roles rank below CUSTOMER.
func (r Role) HasAtLeast(required Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		rank = -1
	}
	reqRank, reqOK := roleRank[required]
	if !reqOK {
		return false
	}
	return rank >= reqRank
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// User represents a registered member of the platform.
// TokenBalance is mutated only by the ledger service and never goes negative.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:120;not null" json:"name"`
	Email        string         `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password     string         `gorm:"not null" json:"-"`
	Role         Role           `gorm:"type:varchar(20);not null;default:'CUSTOMER'" json:"role"`
	TokenBalance int            `gorm:"not null;default:0" json:"token_balance"`
	IsVerified   bool           `gorm:"not null;default:false" json:"is_verified"`
	Avatar       string         `json:"avatar,omitempty"`
	Company      string         `gorm:"size:160" json:"company,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// PublicUser is the trimmed representation embedded in posts, messages, and
// comments.
type PublicUser struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role"`
}

// Public returns the embeddable representation of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
		Role:   u.Role,
	}
}
