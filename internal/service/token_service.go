package service

import (
	"context"
	"fmt"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"

	"gorm.io/gorm"
)

// TokenService handles token purchase requests: users ask for tokens, admins
// resolve each request exactly once, approval credits the ledger.
type TokenService struct {
	db         *gorm.DB
	reqRepo    repository.TokenRequestRepository
	ledgerRepo repository.LedgerRepository
	notifier   *NotificationService
	isAdmin    func(ctx context.Context, userID uint) (bool, error)
}

// RequestTokensInput is the payload for a new purchase request.
type RequestTokensInput struct {
	UserID      uint
	Amount      int
	Price       float64
	Description string
}

func NewTokenService(
	db *gorm.DB,
	reqRepo repository.TokenRequestRepository,
	ledgerRepo repository.LedgerRepository,
	notifier *NotificationService,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *TokenService {
	return &TokenService{
		db:         db,
		reqRepo:    reqRepo,
		ledgerRepo: ledgerRepo,
		notifier:   notifier,
		isAdmin:    isAdmin,
	}
}

// RequestTokens files a pending purchase request.
func (s *TokenService) RequestTokens(ctx context.Context, in RequestTokensInput) (*models.TokenRequest, error) {
	if in.Amount <= 0 {
		return nil, models.NewValidationError("Amount must be positive")
	}
	if in.Amount > 100000 {
		return nil, models.NewValidationError("Amount too large")
	}
	if in.Price < 0 {
		return nil, models.NewValidationError("Price cannot be negative")
	}

	req := &models.TokenRequest{
		Amount:      in.Amount,
		Price:       in.Price,
		Description: in.Description,
		Status:      models.TokenRequestPending,
		UserID:      in.UserID,
	}
	if err := s.reqRepo.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// MyRequests lists the user's own requests, newest first.
func (s *TokenService) MyRequests(ctx context.Context, userID uint, limit, offset int) ([]models.TokenRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.reqRepo.ListByUser(ctx, userID, limit, offset)
}

// PendingRequests lists unresolved requests for the admin queue, oldest first.
func (s *TokenService) PendingRequests(ctx context.Context, reviewerID uint, limit, offset int) ([]models.TokenRequest, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.reqRepo.ListPending(ctx, limit, offset)
}

// Approve resolves a pending request and credits the requested amount as a
// PURCHASE. The flip and the credit share one transaction; the deterministic
// key makes the credit single-shot across retries.
func (s *TokenService) Approve(ctx context.Context, requestID, reviewerID uint) (*models.TokenRequest, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}

	req, err := s.reqRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var won bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.reqRepo.ResolveIfPending(tx, requestID, models.TokenRequestApproved, reviewerID, "")
		if txErr != nil {
			return txErr
		}
		if !won {
			return nil
		}
		rid := fmt.Sprintf("tokreq:%d", requestID)
		entry := &models.TokenTransaction{
			Type:        models.TransactionPurchase,
			Description: fmt.Sprintf("Token purchase request #%d approved", requestID),
			RequestID:   &rid,
		}
		return s.ledgerRepo.CreditTx(tx, req.UserID, req.Amount, entry)
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.NewInvalidStateError("Token request has already been resolved")
	}

	if s.notifier != nil {
		_, _ = s.notifier.Notify(ctx, req.UserID, models.NotificationTokens,
			"Tokens added",
			fmt.Sprintf("Your request for %d tokens was approved.", req.Amount))
	}

	return s.reqRepo.GetByID(ctx, requestID)
}

// Reject resolves a pending request without crediting anything.
func (s *TokenService) Reject(ctx context.Context, requestID, reviewerID uint, reason string) (*models.TokenRequest, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}

	req, err := s.reqRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var won bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.reqRepo.ResolveIfPending(tx, requestID, models.TokenRequestRejected, reviewerID, reason)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.NewInvalidStateError("Token request has already been resolved")
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("Your request for %d tokens was declined.", req.Amount)
		if reason != "" {
			msg = fmt.Sprintf("%s Reason: %s", msg, reason)
		}
		_, _ = s.notifier.Notify(ctx, req.UserID, models.NotificationTokens, "Token request declined", msg)
	}

	return s.reqRepo.GetByID(ctx, requestID)
}

func (s *TokenService) requireAdmin(ctx context.Context, userID uint) error {
	if s.isAdmin == nil {
		return models.NewForbiddenError("Admin access required")
	}
	ok, err := s.isAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("Admin access required")
	}
	return nil
}
