package repository

import (
	"context"
	"errors"
	"time"

	"insureconnect/internal/models"

	"gorm.io/gorm"
)

// TokenRequestRepository defines persistence operations for token purchase requests.
type TokenRequestRepository interface {
	Create(ctx context.Context, req *models.TokenRequest) error
	GetByID(ctx context.Context, id uint) (*models.TokenRequest, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.TokenRequest, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.TokenRequest, error)
	// ResolveIfPending flips a pending request into a terminal status inside
	// the caller's transaction. Returns false when already resolved.
	ResolveIfPending(tx *gorm.DB, id uint, status models.TokenRequestStatus, reviewerID uint, reason string) (bool, error)
}

type tokenRequestRepository struct {
	db *gorm.DB
}

// NewTokenRequestRepository returns a new TokenRequestRepository implementation.
func NewTokenRequestRepository(db *gorm.DB) TokenRequestRepository {
	return &tokenRequestRepository{db: db}
}

func (r *tokenRequestRepository) Create(ctx context.Context, req *models.TokenRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return models.NewTransientStorageError(err)
	}
	return nil
}

func (r *tokenRequestRepository) GetByID(ctx context.Context, id uint) (*models.TokenRequest, error) {
	var req models.TokenRequest
	err := r.db.WithContext(ctx).
		Preload("User").
		First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("TokenRequest", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *tokenRequestRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.TokenRequest, error) {
	var reqs []models.TokenRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *tokenRequestRepository) ListPending(ctx context.Context, limit, offset int) ([]models.TokenRequest, error) {
	var reqs []models.TokenRequest
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.TokenRequestPending).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *tokenRequestRepository) ResolveIfPending(tx *gorm.DB, id uint, status models.TokenRequestStatus, reviewerID uint, reason string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         status,
		"reviewed_by_id": reviewerID,
		"reviewed_at":    now,
	}
	if status == models.TokenRequestRejected {
		updates["rejection_reason"] = reason
	}

	res := tx.Model(&models.TokenRequest{}).
		Where("id = ? AND status = ?", id, models.TokenRequestPending).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewTransientStorageError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
