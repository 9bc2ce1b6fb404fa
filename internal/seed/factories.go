// Package seed provides helpers to create demo data for development and
// testing. Every token movement it fakes still goes through ledger rows, so
// seeded users satisfy the same balance invariant as real ones.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"insureconnect/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedOptions tune factory behavior.
type SeedOptions struct {
	// DryRun logs what would be created without writing to the database.
	DryRun bool
	// SkipBcrypt stores plaintext passwords. Dev fast mode only.
	SkipBcrypt bool
	// MaxDays spreads created_at timestamps over the last N days.
	MaxDays int
}

// Categories the demo content is spread over. Must stay a subset of the
// categories the validation package accepts.
var categories = []string{
	"life", "health", "auto", "home", "commercial",
	"claims", "regulation", "sales", "general",
}

var postTitles = []string{
	"How I explain deductibles to first-time buyers",
	"Umbrella policies are underrated",
	"Lessons from a denied water damage claim",
	"Comparing term vs whole life in 2026",
	"What the new state filing rules mean for agents",
	"Commercial fleet coverage gotchas",
	"My renewal season checklist",
	"Why I always photograph the roof",
	"Reading an ACORD form without crying",
	"Cross-selling without being pushy",
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts SeedOptions
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts SeedOptions) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	//nolint:gosec // weak randomness is fine for demo data
	return &Factory{
		db:     db,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID: 1000,
	}
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	return time.Now().Add(-back)
}

// CreateUser constructs and persists a member. Roughly a third of generated
// users are agents; admins are never generated here.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	role := models.RoleCustomer
	if f.rng.Intn(3) == 0 {
		role = models.RoleAgent
	}

	user := &models.User{
		Name:    gofakeit.Name(),
		Email:   fmt.Sprintf("%d.%s", gofakeit.Number(100, 999), gofakeit.Email()),
		Role:    role,
		Company: gofakeit.Company(),
		Avatar:  fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashed)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s (%s)", user.Email, user.Role)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GrantTokens credits the user through a ledger row plus balance update, the
// same shape the ledger service produces. requestID deduplicates re-runs.
func (f *Factory) GrantTokens(user *models.User, amount int, description, requestID string) error {
	if f.opts.DryRun {
		log.Printf("[dry-run] GrantTokens: %d to user %d", amount, user.ID)
		return nil
	}

	return f.db.Transaction(func(tx *gorm.DB) error {
		entry := models.TokenTransaction{
			Type:        models.TransactionPurchase,
			Amount:      amount,
			Description: description,
			UserID:      user.ID,
		}
		if requestID != "" {
			rid := requestID
			entry.RequestID = &rid
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("token_balance", gorm.Expr("token_balance + ?", amount)).Error
	})
}

// CreatePost persists a post in the given status with its submission debit.
// Approved and rejected posts carry the reviewer; rejected posts get their
// refund credited so the ledger stays consistent.
func (f *Factory) CreatePost(author *models.User, reviewer *models.User, status models.PostStatus, overrides ...func(*models.Post)) (*models.Post, error) {
	cost := 10
	var imageURL string
	if f.rng.Float32() < 0.4 {
		imageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.UUID())
		cost += f.rng.Intn(40) + 1
	}

	post := &models.Post{
		Title:     postTitles[f.rng.Intn(len(postTitles))],
		Content:   gofakeit.Paragraph(1, 2, 8, " "),
		Category:  categories[f.rng.Intn(len(categories))],
		ImageURL:  imageURL,
		TokenCost: cost,
		Status:    status,
		AuthorID:  author.ID,
		CreatedAt: f.pastTime(),
	}
	if len(post.Content) > models.MaxPostContentLen {
		post.Content = post.Content[:models.MaxPostContentLen]
	}
	if status.Terminal() && reviewer != nil {
		reviewedAt := post.CreatedAt.Add(time.Duration(f.rng.Intn(48)) * time.Hour)
		post.ReviewedByID = &reviewer.ID
		post.ReviewedAt = &reviewedAt
	}
	if status == models.PostStatusRejected {
		post.RejectionReason = "Does not meet the content guidelines"
	}

	for _, override := range overrides {
		override(post)
	}

	if f.opts.DryRun {
		f.nextID++
		post.ID = f.nextID
		log.Printf("[dry-run] CreatePost: %q status=%s author=%d", post.Title, post.Status, post.AuthorID)
		return post, nil
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		debit := models.TokenTransaction{
			Type:        models.TransactionPostCreation,
			Amount:      -post.TokenCost,
			Description: fmt.Sprintf("Post submission: %s", post.Title),
			UserID:      author.ID,
			PostID:      &post.ID,
		}
		if err := tx.Create(&debit).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", author.ID).
			Update("token_balance", gorm.Expr("token_balance - ?", post.TokenCost)).Error; err != nil {
			return err
		}

		if post.Status == models.PostStatusRejected {
			rid := fmt.Sprintf("refund:post:%d", post.ID)
			refund := models.TokenTransaction{
				Type:        models.TransactionRefund,
				Amount:      post.TokenCost,
				Description: fmt.Sprintf("Refund for rejected post: %s", post.Title),
				UserID:      author.ID,
				PostID:      &post.ID,
				RequestID:   &rid,
			}
			if err := tx.Create(&refund).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).Where("id = ?", author.ID).
				Update("token_balance", gorm.Expr("token_balance + ?", post.TokenCost)).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a comment by user on post.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.PostComment)) (*models.PostComment, error) {
	comment := &models.PostComment{
		Content: gofakeit.Sentence(8),
		UserID:  user.ID,
		PostID:  post.ID,
	}

	for _, override := range overrides {
		override(comment)
	}

	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike persists a like from user on post. Duplicate pairs are skipped.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	like := &models.PostLike{UserID: user.ID, PostID: post.ID}
	err := f.db.Create(like).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// CreateTokenRequest persists a purchase request. Approved requests get their
// PURCHASE credit so the ledger stays consistent.
func (f *Factory) CreateTokenRequest(user *models.User, reviewer *models.User, status models.TokenRequestStatus) (*models.TokenRequest, error) {
	amount := (f.rng.Intn(10) + 1) * 25

	req := &models.TokenRequest{
		Amount:      amount,
		Price:       float64(amount) / 10,
		Description: "Token top-up",
		Status:      status,
		UserID:      user.ID,
	}
	if status.Terminal() && reviewer != nil {
		now := time.Now()
		req.ReviewedByID = &reviewer.ID
		req.ReviewedAt = &now
	}
	if status == models.TokenRequestRejected {
		req.RejectionReason = "No payment received"
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		if req.Status != models.TokenRequestApproved {
			return nil
		}
		rid := fmt.Sprintf("tokreq:%d", req.ID)
		credit := models.TokenTransaction{
			Type:        models.TransactionPurchase,
			Amount:      amount,
			Description: fmt.Sprintf("Approved token request #%d", req.ID),
			UserID:      user.ID,
			RequestID:   &rid,
		}
		if err := tx.Create(&credit).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("token_balance", gorm.Expr("token_balance + ?", amount)).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CreateConversation returns the 1:1 chat between the two users, creating it
// and its participant rows if needed.
func (f *Factory) CreateConversation(a, b *models.User) (*models.Chat, error) {
	key := models.DirectChatKey(a.ID, b.ID)

	var chat models.Chat
	if err := f.db.Where(models.Chat{ParticipantKey: key}).
		FirstOrCreate(&chat).Error; err != nil {
		return nil, err
	}

	for _, uid := range []uint{a.ID, b.ID} {
		p := models.ChatParticipant{ChatID: chat.ID, UserID: uid}
		if err := f.db.Where(p).FirstOrCreate(&p).Error; err != nil {
			return nil, err
		}
	}
	return &chat, nil
}

// CreateMessage persists a message from sender in the chat.
func (f *Factory) CreateMessage(chat *models.Chat, sender *models.User, overrides ...func(*models.Message)) (*models.Message, error) {
	message := &models.Message{
		ChatID:   chat.ID,
		SenderID: sender.ID,
		Content:  gofakeit.Sentence(10),
		Type:     models.MessageText,
	}

	for _, override := range overrides {
		override(message)
	}

	if err := f.db.Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

// CreateNotification persists a notification addressed to the user.
func (f *Factory) CreateNotification(user *models.User, nType, title, message string) error {
	n := &models.Notification{
		UserID:  user.ID,
		Type:    nType,
		Title:   title,
		Message: message,
		Read:    f.rng.Intn(2) == 0,
	}
	return f.db.Create(n).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
