package service

import (
	"context"
	"fmt"
	"strings"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
)

// PostService serves the public feed and engagement: likes and comments on
// approved posts. Submission and review live in ModerationService.
type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	notifier *NotificationService
}

// ListFeedInput selects a feed page.
type ListFeedInput struct {
	Category string
	ViewerID uint
	Limit    int
	Offset   int
}

func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository, notifier *NotificationService) *PostService {
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		notifier: notifier,
	}
}

// Feed lists approved posts, newest first.
func (s *PostService) Feed(ctx context.Context, in ListFeedInput) ([]models.Post, error) {
	limit := in.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	return s.postRepo.ListApproved(ctx, in.Category, in.ViewerID, limit, offset)
}

// GetPost returns one post. Non-approved posts are only visible to their
// author; moderators read the pending queue instead.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusApproved && post.AuthorID != viewerID {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

// MyPosts lists the author's own posts in every status.
func (s *PostService) MyPosts(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.postRepo.ListByAuthor(ctx, authorID, limit, offset)
}

// Like records a like on an approved post and notifies the author once.
func (s *PostService) Like(ctx context.Context, userID, postID uint) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusApproved {
		return models.NewInvalidStateError("Post is not available")
	}

	created, err := s.postRepo.Like(ctx, userID, postID)
	if err != nil {
		return err
	}

	// Only a fresh like notifies; repeat likes are silent no-ops.
	if created && post.AuthorID != userID && s.notifier != nil {
		liker, err := s.userRepo.GetByID(ctx, userID)
		if err == nil {
			_, _ = s.notifier.Notify(ctx, post.AuthorID, models.NotificationLike,
				"New like",
				fmt.Sprintf("%s liked your post %q.", liker.Name, post.Title))
		}
	}
	return nil
}

// Unlike removes a like. Idempotent.
func (s *PostService) Unlike(ctx context.Context, userID, postID uint) error {
	return s.postRepo.Unlike(ctx, userID, postID)
}

// Comment adds a comment to an approved post and notifies the author.
func (s *PostService) Comment(ctx context.Context, userID, postID uint, content string) (*models.PostComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if len(content) > 2000 {
		return nil, models.NewValidationError("Comment too long (max 2000 characters)")
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusApproved {
		return nil, models.NewInvalidStateError("Post is not available")
	}

	comment := &models.PostComment{
		Content: content,
		UserID:  userID,
		PostID:  postID,
	}
	if err := s.postRepo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	if post.AuthorID != userID && s.notifier != nil {
		commenter, err := s.userRepo.GetByID(ctx, userID)
		if err == nil {
			_, _ = s.notifier.Notify(ctx, post.AuthorID, models.NotificationComment,
				"New comment",
				fmt.Sprintf("%s commented on your post %q.", commenter.Name, post.Title))
		}
	}
	return comment, nil
}

// Comments lists a post's comments in chronological order.
func (s *PostService) Comments(ctx context.Context, postID uint, limit, offset int) ([]models.PostComment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.postRepo.ListComments(ctx, postID, limit, offset)
}

// Search matches approved posts by title or content.
func (s *PostService) Search(ctx context.Context, query string, viewerID uint, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.postRepo.SearchApproved(ctx, query, viewerID, limit)
}

// StatusCounts returns post totals per status for the admin dashboard.
func (s *PostService) StatusCounts(ctx context.Context) (map[models.PostStatus]int64, error) {
	return s.postRepo.CountByStatus(ctx)
}
