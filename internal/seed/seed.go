package seed

import (
	"fmt"
	"log"

	"insureconnect/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
}

// Seed populates the database with demo data: members, moderated posts,
// engagement, token requests, and a handful of conversations. Seeded ledgers
// reconcile; every balance equals the sum of its transaction rows.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("🌱 Seeding %d users and %d posts...", opts.NumUsers, opts.NumPosts)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("⚠️  Warning: could not clear all existing data, continuing anyway...")
		}
	}

	f := NewFactory(db, SeedOptions{})

	admin, err := ensureSeedAdmin(db, f)
	if err != nil {
		return fmt.Errorf("failed to create seed admin: %w", err)
	}

	users, err := createUsers(f, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	posts, err := createPosts(f, users, admin, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("✓ %d posts created", len(posts))

	if err := createEngagement(f, users, posts); err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	log.Println("✓ likes and comments created")

	if err := createTokenRequests(f, users, admin); err != nil {
		return fmt.Errorf("failed to create token requests: %w", err)
	}
	log.Println("✓ token requests created")

	if err := createConversations(f, users); err != nil {
		return fmt.Errorf("failed to create conversations: %w", err)
	}
	log.Println("✓ conversations created")

	log.Println("🎉 Database seeding completed")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE notifications, messages, chat_participants, chats,
			token_requests, token_transactions, post_comments, post_likes, posts, users
			RESTART IDENTITY CASCADE`).Error
	}
	for _, table := range []string{
		"notifications", "messages", "chat_participants", "chats",
		"token_requests", "token_transactions", "post_comments", "post_likes",
		"posts", "users",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureSeedAdmin(db *gorm.DB, f *Factory) (*models.User, error) {
	var admin models.User
	err := db.Where("role = ?", models.RoleAdmin).First(&admin).Error
	if err == nil {
		return &admin, nil
	}

	created, err := f.CreateUser(func(u *models.User) {
		u.Name = "Platform Moderator"
		u.Email = "moderator@insureconnect.local"
		u.Role = models.RoleAdmin
		u.Company = "InsureConnect"
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func createUsers(f *Factory, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		user, err := f.CreateUser()
		if err != nil {
			log.Printf("failed to create user: %v", err)
			continue
		}
		if err := f.GrantTokens(user, 100, "Welcome bonus", fmt.Sprintf("signup:%d", user.ID)); err != nil {
			return nil, err
		}
		users = append(users, user)

		if i > 0 && i%100 == 0 {
			log.Printf("created %d users...", i)
		}
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no users created")
	}
	return users, nil
}

func createPosts(f *Factory, users []*models.User, admin *models.User, count int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, count)
	for i := 0; i < count; i++ {
		author := users[f.rng.Intn(len(users))]

		// Spread of moderation outcomes: mostly approved, some still in the
		// queue, a few rejected with their refunds applied.
		status := models.PostStatusApproved
		switch f.rng.Intn(10) {
		case 0:
			status = models.PostStatusRejected
		case 1, 2:
			status = models.PostStatusPending
		}

		post, err := f.CreatePost(author, admin, status)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)

		switch status {
		case models.PostStatusApproved:
			_ = f.CreateNotification(author, models.NotificationPostApproved,
				"Post approved", fmt.Sprintf("Your post %q is now live.", post.Title))
		case models.PostStatusRejected:
			_ = f.CreateNotification(author, models.NotificationPostRejected,
				"Post rejected", fmt.Sprintf("Your post %q was rejected. %d tokens were refunded.", post.Title, post.TokenCost))
		}

		if i > 0 && i%100 == 0 {
			log.Printf("created %d posts...", i)
		}
	}
	return posts, nil
}

func createEngagement(f *Factory, users []*models.User, posts []*models.Post) error {
	for _, post := range posts {
		if post.Status != models.PostStatusApproved {
			continue
		}
		for i := 0; i < f.rng.Intn(5); i++ {
			if err := f.CreateLike(users[f.rng.Intn(len(users))], post); err != nil {
				return err
			}
		}
		for i := 0; i < f.rng.Intn(3); i++ {
			if _, err := f.CreateComment(users[f.rng.Intn(len(users))], post); err != nil {
				return err
			}
		}
	}
	return nil
}

func createTokenRequests(f *Factory, users []*models.User, admin *models.User) error {
	statuses := []models.TokenRequestStatus{
		models.TokenRequestPending,
		models.TokenRequestApproved,
		models.TokenRequestRejected,
	}
	for i := 0; i < len(users)/3+1; i++ {
		user := users[f.rng.Intn(len(users))]
		if _, err := f.CreateTokenRequest(user, admin, statuses[f.rng.Intn(len(statuses))]); err != nil {
			return err
		}
	}
	return nil
}

func createConversations(f *Factory, users []*models.User) error {
	if len(users) < 2 {
		return nil
	}
	pairs := len(users) / 2
	for i := 0; i < pairs; i++ {
		a := users[f.rng.Intn(len(users))]
		b := users[f.rng.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}
		chat, err := f.CreateConversation(a, b)
		if err != nil {
			return err
		}
		for m := 0; m < f.rng.Intn(8)+1; m++ {
			sender := a
			if m%2 == 1 {
				sender = b
			}
			if _, err := f.CreateMessage(chat, sender); err != nil {
				return err
			}
		}
	}
	return nil
}
