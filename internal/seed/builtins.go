package seed

import (
	"errors"
	"fmt"
	"time"

	"insureconnect/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const announcementEmail = "team@insureconnect.local"

// EnsureBuiltIns idempotently creates the platform's built-in content: the
// announcement account and an approved welcome post new members see in the
// feed. Safe to run on every startup.
func EnsureBuiltIns(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var team models.User
		err := tx.Where("email = ?", announcementEmail).First(&team).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hashed, herr := bcrypt.GenerateFromPassword([]byte(randomBuiltinPassword()), bcrypt.DefaultCost)
			if herr != nil {
				return herr
			}
			team = models.User{
				Name:     "InsureConnect Team",
				Email:    announcementEmail,
				Password: string(hashed),
				Role:     models.RoleAdmin,
				Company:  "InsureConnect",
			}
			if cerr := tx.Create(&team).Error; cerr != nil {
				return cerr
			}
		case err != nil:
			return err
		}

		var count int64
		if err := tx.Model(&models.Post{}).
			Where("author_id = ? AND title = ?", team.ID, welcomeTitle).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now()
		welcome := models.Post{
			Title:        welcomeTitle,
			Content:      welcomeBody,
			Category:     "general",
			Status:       models.PostStatusApproved,
			AuthorID:     team.ID,
			ReviewedByID: &team.ID,
			ReviewedAt:   &now,
		}
		return tx.Create(&welcome).Error
	})
}

const (
	welcomeTitle = "Welcome to InsureConnect"
	welcomeBody  = "This is the community for insurance professionals. " +
		"Introduce yourself, share what you are working on, and pick a category " +
		"that fits your line of business. Posts go through a quick review before " +
		"they appear in the feed."
)

// randomBuiltinPassword returns an unguessable placeholder. The announcement
// account is never meant to be logged into; admins reset it if they need it.
func randomBuiltinPassword() string {
	return fmt.Sprintf("builtin-%d-%d", time.Now().UnixNano(), time.Now().Unix())
}
