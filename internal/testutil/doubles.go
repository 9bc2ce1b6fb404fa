// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"insureconnect/internal/database"
	"insureconnect/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TB is the subset of testing.TB these helpers need.
type TB interface {
	Helper()
	Name() string
	Fatalf(string, ...any)
}

// OpenDB opens an in-memory SQLite database named after the test and migrates
// the full model registry. The shared cache keeps pooled connections attached
// to the same database while the name isolates tests from each other.
func OpenDB(t TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// RecordedPush is one notification delivered through a PushRecorder.
type RecordedPush struct {
	UserID       uint
	Notification models.Notification
}

// PushRecorder is an in-memory real-time delivery double. Set Err before use
// to simulate a failing transport.
type PushRecorder struct {
	mu     sync.Mutex
	Err    error
	pushed []RecordedPush
}

// PushNotification records the delivery, or fails with the configured error.
func (r *PushRecorder) PushNotification(_ context.Context, userID uint, n *models.Notification) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, RecordedPush{UserID: userID, Notification: *n})
	return nil
}

// Pushed returns a copy of everything delivered so far.
func (r *PushRecorder) Pushed() []RecordedPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedPush, len(r.pushed))
	copy(out, r.pushed)
	return out
}

// PushedTo returns deliveries addressed to one user.
func (r *PushRecorder) PushedTo(userID uint) []RecordedPush {
	var out []RecordedPush
	for _, p := range r.Pushed() {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}
