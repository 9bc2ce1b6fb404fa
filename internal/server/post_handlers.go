package server

import (
	"insureconnect/internal/models"
	"insureconnect/internal/service"
	"insureconnect/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/posts. Only approved posts appear; authenticated
// viewers get their like state annotated.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	category := c.Query("category")
	if err := validation.ValidateCategory(category); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	viewerID, _ := s.optionalUserID(c)
	p := parsePagination(c, 20)

	posts, err := s.postService.Feed(c.Context(), service.ListFeedInput{
		Category: category,
		ViewerID: viewerID,
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{"posts": posts})
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	viewerID, _ := s.optionalUserID(c)
	post, err := s.postService.GetPost(c.Context(), id, viewerID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts. The token cost is debited atomically
// with the submission; the post enters the moderation queue as PENDING.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Title          string `json:"title"`
		Content        string `json:"content"`
		Category       string `json:"category"`
		ImageURL       string `json:"image_url"`
		ImageSizeBytes int64  `json:"image_size_bytes"`
		RequestID      string `json:"request_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := validation.ValidateCategory(req.Category); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	post, err := s.moderationService.Submit(c.Context(), service.SubmitPostInput{
		AuthorID:       currentUserID(c),
		Title:          req.Title,
		Content:        req.Content,
		Category:       req.Category,
		ImageURL:       req.ImageURL,
		ImageSizeBytes: req.ImageSizeBytes,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetMyPosts handles GET /api/posts/me/list. Authors see their posts in every
// status, including pending and rejected ones.
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	posts, err := s.postService.MyPosts(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// LikePost handles POST /api/posts/:id/like. Repeat likes are no-ops.
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.Like(c.Context(), currentUserID(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post liked"})
}

// UnlikePost handles DELETE /api/posts/:id/like
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.Unlike(c.Context(), currentUserID(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Like removed"})
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.postService.Comment(c.Context(), currentUserID(c), id, req.Content)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	p := parsePagination(c, 50)
	comments, err := s.postService.Comments(c.Context(), id, p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"comments": comments})
}
