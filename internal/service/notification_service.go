package service

import (
	"context"
	"log/slog"

	"insureconnect/internal/middleware"
	"insureconnect/internal/models"
	"insureconnect/internal/observability"
	"insureconnect/internal/repository"
)

// Pusher delivers a notification to connected clients in real time.
// Persistence does not depend on it; push is best-effort.
type Pusher interface {
	PushNotification(ctx context.Context, userID uint, n *models.Notification) error
}

// NotificationService persists notifications and fans them out to online
// recipients. The durable write always happens first; a failed push never
// fails the operation.
type NotificationService struct {
	repo   repository.NotificationRepository
	pusher Pusher
}

func NewNotificationService(repo repository.NotificationRepository, pusher Pusher) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher}
}

// Notify persists a notification and pushes it to the recipient if online.
func (s *NotificationService) Notify(ctx context.Context, userID uint, nType, title, message string) (*models.Notification, error) {
	if title == "" {
		return nil, models.NewValidationError("Notification title is required")
	}

	n := &models.Notification{
		UserID:  userID,
		Type:    nType,
		Title:   title,
		Message: message,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	observability.RecordNotification("persisted")

	if s.pusher != nil {
		if err := s.pusher.PushNotification(ctx, userID, n); err != nil {
			middleware.Logger.WarnContext(ctx, "notification push failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("type", nType),
				slog.String("error", err.Error()),
			)
		} else {
			observability.RecordNotification("pushed")
		}
	}

	return n, nil
}

// NotificationPage is a page of notifications plus the unread counter.
type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

// List returns the user's notifications, newest first, with the unread count.
func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) (*NotificationPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Notifications: notifications, UnreadCount: unread}, nil
}

// MarkRead flips one notification to read. Idempotent; acting on a missing
// or foreign notification is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllRead flips all of the user's notifications to read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllRead(ctx, userID)
}

// Delete removes one notification. Idempotent.
func (s *NotificationService) Delete(ctx context.Context, id, userID uint) error {
	return s.repo.Delete(ctx, id, userID)
}
