package service

import (
	"context"
	"fmt"
	"testing"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
	"insureconnect/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedUser inserts a user with the given balance backed by a single ledger row,
// so the balance invariant holds for fixtures too.
func seedUser(t *testing.T, db *gorm.DB, name string, balance int) *models.User {
	t.Helper()

	user := &models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "not-a-real-hash",
		Role:     models.RoleCustomer,
	}
	require.NoError(t, db.Create(user).Error)

	if balance > 0 {
		repo := repository.NewLedgerRepository(db)
		entry := &models.TokenTransaction{
			Type:        models.TransactionPurchase,
			Description: "Test grant",
		}
		require.NoError(t, repo.Credit(t.Context(), user.ID, balance, entry))
		user.TokenBalance = balance
	}
	return user
}

// singleConn caps the sqlite pool at one connection. Goroutines still race
// at the service layer while the driver serializes writes, which is the
// closest sqlite gets to Postgres row-locking semantics.
func singleConn(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

// seedAdmin inserts an admin account.
func seedAdmin(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()

	admin := &models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "not-a-real-hash",
		Role:     models.RoleAdmin,
	}
	require.NoError(t, db.Create(admin).Error)
	return admin
}

// newTestNotifier builds a NotificationService backed by the database and an
// in-memory push recorder.
func newTestNotifier(db *gorm.DB) (*NotificationService, *testutil.PushRecorder) {
	recorder := &testutil.PushRecorder{}
	return NewNotificationService(repository.NewNotificationRepository(db), recorder), recorder
}

// adminChecker returns the admin gate used by moderation and token services.
func adminChecker(db *gorm.DB) func(ctx context.Context, userID uint) (bool, error) {
	repo := repository.NewUserRepository(db)
	return func(ctx context.Context, userID uint) (bool, error) {
		user, err := repo.GetByID(ctx, userID)
		if err != nil {
			return false, err
		}
		return user.Role.HasAtLeast(models.RoleAdmin), nil
	}
}
