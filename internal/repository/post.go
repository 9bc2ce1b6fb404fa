package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"insureconnect/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines persistence operations for posts, likes, and comments.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	CreateTx(tx *gorm.DB, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	ListApproved(ctx context.Context, category string, viewerID uint, limit, offset int) ([]models.Post, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error)
	SearchApproved(ctx context.Context, query string, viewerID uint, limit int) ([]models.Post, error)
	// DecideIfPending flips a pending post into a terminal status. Returns
	// false when the post was already decided, so concurrent reviewers cannot
	// both win.
	DecideIfPending(tx *gorm.DB, postID uint, status models.PostStatus, reviewerID uint, reason string) (bool, error)
	Like(ctx context.Context, userID, postID uint) (bool, error)
	Unlike(ctx context.Context, userID, postID uint) error
	CreateComment(ctx context.Context, comment *models.PostComment) error
	ListComments(ctx context.Context, postID uint, limit, offset int) ([]models.PostComment, error)
	CountByStatus(ctx context.Context) (map[models.PostStatus]int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.CreateTx(r.db.WithContext(ctx), post)
}

func (r *postRepository) CreateTx(tx *gorm.DB, post *models.Post) error {
	if err := tx.Create(post).Error; err != nil {
		return models.NewTransientStorageError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func withEngagement(db *gorm.DB, viewerID uint) *gorm.DB {
	return db.Select(
		"posts.*",
		"(SELECT COUNT(*) FROM post_likes WHERE post_likes.post_id = posts.id) AS likes_count",
		"(SELECT COUNT(*) FROM post_comments WHERE post_comments.post_id = posts.id) AS comments_count",
		"(SELECT COUNT(*) > 0 FROM post_likes WHERE post_likes.post_id = posts.id AND post_likes.user_id = ?) AS liked",
		viewerID,
	)
}

func (r *postRepository) ListApproved(ctx context.Context, category string, viewerID uint, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	q := withEngagement(r.db.WithContext(ctx).Model(&models.Post{}), viewerID).
		Preload("Author").
		Where("posts.status = ?", models.PostStatusApproved)
	if category != "" {
		q = q.Where("posts.category = ?", category)
	}
	err := q.Order("posts.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListPending(ctx context.Context, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("status = ?", models.PostStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	err := withEngagement(r.db.WithContext(ctx).Model(&models.Post{}), authorID).
		Where("posts.author_id = ?", authorID).
		Order("posts.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// SearchApproved matches approved posts whose title or content contains the
// query, case-insensitively, newest first.
func (r *postRepository) SearchApproved(ctx context.Context, query string, viewerID uint, limit int) ([]models.Post, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var posts []models.Post
	err := withEngagement(r.db.WithContext(ctx).Model(&models.Post{}), viewerID).
		Preload("Author").
		Where("posts.status = ?", models.PostStatusApproved).
		Where("LOWER(posts.title) LIKE ? OR LOWER(posts.content) LIKE ?", pattern, pattern).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) DecideIfPending(tx *gorm.DB, postID uint, status models.PostStatus, reviewerID uint, reason string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         status,
		"reviewed_by_id": reviewerID,
		"reviewed_at":    now,
	}
	if status == models.PostStatusRejected {
		updates["rejection_reason"] = reason
	}

	res := tx.Model(&models.Post{}).
		Where("id = ? AND status = ?", postID, models.PostStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewTransientStorageError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *postRepository) Like(ctx context.Context, userID, postID uint) (bool, error) {
	like := models.PostLike{UserID: userID, PostID: postID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.PostLike{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) CreateComment(ctx context.Context, comment *models.PostComment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) ListComments(ctx context.Context, postID uint, limit, offset int) ([]models.PostComment, error) {
	var comments []models.PostComment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

func (r *postRepository) CountByStatus(ctx context.Context) (map[models.PostStatus]int64, error) {
	type row struct {
		Status models.PostStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	counts := make(map[models.PostStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
