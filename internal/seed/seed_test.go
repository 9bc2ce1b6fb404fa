package seed

import (
	"fmt"
	"strings"
	"testing"

	"insureconnect/internal/database"
	"insureconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

func TestSeedLedgersReconcile(t *testing.T) {
	db := newSeedDB(t)

	require.NoError(t, Seed(db, Options{NumUsers: 8, NumPosts: 20}))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.NotEmpty(t, users)

	for _, user := range users {
		var sum int64
		require.NoError(t, db.Model(&models.TokenTransaction{}).
			Where("user_id = ?", user.ID).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&sum).Error)
		assert.Equal(t, int64(user.TokenBalance), sum,
			"user %d balance must equal its ledger sum", user.ID)
		assert.GreaterOrEqual(t, user.TokenBalance, 0,
			"user %d balance must never be negative", user.ID)
	}
}

func TestSeedModerationShape(t *testing.T) {
	db := newSeedDB(t)

	require.NoError(t, Seed(db, Options{NumUsers: 6, NumPosts: 30}))

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 30)

	for _, post := range posts {
		assert.GreaterOrEqual(t, post.TokenCost, 10)
		switch post.Status {
		case models.PostStatusPending:
			assert.Nil(t, post.ReviewedByID)
		case models.PostStatusApproved, models.PostStatusRejected:
			assert.NotNil(t, post.ReviewedByID)
			assert.NotNil(t, post.ReviewedAt)
		default:
			t.Fatalf("unexpected status %q", post.Status)
		}
		if post.Status == models.PostStatusRejected {
			assert.NotEmpty(t, post.RejectionReason)
		}
	}
}

func TestFactoryConversationDeduplicates(t *testing.T) {
	db := newSeedDB(t)
	f := NewFactory(db, SeedOptions{SkipBcrypt: true})

	a, err := f.CreateUser()
	require.NoError(t, err)
	b, err := f.CreateUser()
	require.NoError(t, err)

	first, err := f.CreateConversation(a, b)
	require.NoError(t, err)
	second, err := f.CreateConversation(b, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var participants int64
	require.NoError(t, db.Model(&models.ChatParticipant{}).
		Where("chat_id = ?", first.ID).Count(&participants).Error)
	assert.Equal(t, int64(2), participants)
}

func TestFactoryDryRunWritesNothing(t *testing.T) {
	db := newSeedDB(t)
	f := NewFactory(db, SeedOptions{DryRun: true})

	user, err := f.CreateUser()
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	require.NoError(t, f.GrantTokens(user, 100, "Welcome bonus", ""))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnsureBuiltInsIdempotent(t *testing.T) {
	db := newSeedDB(t)

	require.NoError(t, EnsureBuiltIns(db))
	require.NoError(t, EnsureBuiltIns(db))

	var admins int64
	require.NoError(t, db.Model(&models.User{}).
		Where("email = ?", announcementEmail).Count(&admins).Error)
	assert.Equal(t, int64(1), admins)

	var welcomes int64
	require.NoError(t, db.Model(&models.Post{}).
		Where("title = ?", welcomeTitle).Count(&welcomes).Error)
	assert.Equal(t, int64(1), welcomes)
}
