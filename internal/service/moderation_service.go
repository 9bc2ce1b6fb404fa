package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"insureconnect/internal/models"
	"insureconnect/internal/observability"
	"insureconnect/internal/repository"

	"gorm.io/gorm"
)

// ModerationService runs the post lifecycle: token-gated submission, then a
// single terminal review decision. Rejection refunds the captured cost in the
// same transaction as the status flip.
type ModerationService struct {
	db         *gorm.DB
	postRepo   repository.PostRepository
	ledgerRepo repository.LedgerRepository
	notifier   *NotificationService
	baseCost   int
	isAdmin    func(ctx context.Context, userID uint) (bool, error)
}

// SubmitPostInput is the payload for a new post submission.
type SubmitPostInput struct {
	AuthorID       uint
	Title          string
	Content        string
	Category       string
	ImageURL       string
	ImageSizeBytes int64
	// RequestID makes a retried submission debit at most once.
	RequestID string
}

func NewModerationService(
	db *gorm.DB,
	postRepo repository.PostRepository,
	ledgerRepo repository.LedgerRepository,
	notifier *NotificationService,
	baseCost int,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *ModerationService {
	if baseCost <= 0 {
		baseCost = 10
	}
	return &ModerationService{
		db:         db,
		postRepo:   postRepo,
		ledgerRepo: ledgerRepo,
		notifier:   notifier,
		baseCost:   baseCost,
		isAdmin:    isAdmin,
	}
}

// CostFor returns the token cost of a submission: the base cost plus one
// token per started KiB of attached image.
func (s *ModerationService) CostFor(imageSizeBytes int64) int {
	cost := s.baseCost
	if imageSizeBytes > 0 {
		cost += int((imageSizeBytes + 1023) / 1024)
	}
	return cost
}

// Submit validates the post, debits its cost, and persists it PENDING. The
// debit and the insert commit or roll back together: no post without its
// payment, no payment without its post.
func (s *ModerationService) Submit(ctx context.Context, in SubmitPostInput) (*models.Post, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if len(in.Content) > models.MaxPostContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", models.MaxPostContentLen))
	}

	cost := s.CostFor(in.ImageSizeBytes)
	post := &models.Post{
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Category:  in.Category,
		ImageURL:  in.ImageURL,
		TokenCost: cost,
		Status:    models.PostStatusPending,
		AuthorID:  in.AuthorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.postRepo.CreateTx(tx, post); err != nil {
			return err
		}
		entry := &models.TokenTransaction{
			Type:        models.TransactionPostCreation,
			Description: fmt.Sprintf("Post submission: %s", post.Title),
			PostID:      &post.ID,
		}
		if in.RequestID != "" {
			rid := in.RequestID
			entry.RequestID = &rid
		}
		return s.ledgerRepo.DebitTx(tx, in.AuthorID, cost, entry)
	})
	if err != nil {
		// A replayed request id means this submission already went through.
		if errors.Is(err, repository.ErrLedgerDuplicate) {
			return nil, models.NewInvalidStateError("Duplicate submission")
		}
		return nil, err
	}

	observability.RecordModerationDecision("submitted")
	return post, nil
}

// Approve transitions a pending post to APPROVED. Exactly one reviewer wins;
// a second decision on the same post fails with INVALID_STATE.
func (s *ModerationService) Approve(ctx context.Context, postID, reviewerID uint) (*models.Post, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	var won bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.postRepo.DecideIfPending(tx, postID, models.PostStatusApproved, reviewerID, "")
		return txErr
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.NewInvalidStateError("Post has already been reviewed")
	}

	observability.RecordModerationDecision(string(models.PostStatusApproved))

	// Fan-out happens after commit; a notification failure cannot undo the decision.
	if s.notifier != nil {
		_, _ = s.notifier.Notify(ctx, post.AuthorID, models.NotificationPostApproved,
			"Post approved",
			fmt.Sprintf("Your post %q is now live.", post.Title))
	}

	return s.postRepo.GetByID(ctx, postID)
}

// Reject transitions a pending post to REJECTED and refunds its captured
// cost. The flip and the refund are one transaction; the deterministic refund
// key guarantees at most one refund per post even across retries.
func (s *ModerationService) Reject(ctx context.Context, postID, reviewerID uint, reason string) (*models.Post, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("Rejection reason is required")
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	var won bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.postRepo.DecideIfPending(tx, postID, models.PostStatusRejected, reviewerID, reason)
		if txErr != nil {
			return txErr
		}
		if !won {
			return nil
		}
		rid := fmt.Sprintf("refund:post:%d", postID)
		entry := &models.TokenTransaction{
			Type:        models.TransactionRefund,
			Description: fmt.Sprintf("Refund for rejected post: %s", post.Title),
			PostID:      &post.ID,
			RequestID:   &rid,
		}
		return s.ledgerRepo.CreditTx(tx, post.AuthorID, post.TokenCost, entry)
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.NewInvalidStateError("Post has already been reviewed")
	}

	observability.RecordModerationDecision(string(models.PostStatusRejected))

	if s.notifier != nil {
		_, _ = s.notifier.Notify(ctx, post.AuthorID, models.NotificationPostRejected,
			"Post rejected",
			fmt.Sprintf("Your post %q was rejected: %s. %d tokens were refunded.", post.Title, reason, post.TokenCost))
	}

	return s.postRepo.GetByID(ctx, postID)
}

func (s *ModerationService) requireAdmin(ctx context.Context, userID uint) error {
	if s.isAdmin == nil {
		return models.NewForbiddenError("Moderator access required")
	}
	ok, err := s.isAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("Moderator access required")
	}
	return nil
}

// PendingQueue lists posts awaiting review, oldest first.
func (s *ModerationService) PendingQueue(ctx context.Context, reviewerID uint, limit, offset int) ([]models.Post, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.postRepo.ListPending(ctx, limit, offset)
}
