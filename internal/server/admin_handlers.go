package server

import (
	"insureconnect/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetAdminStats handles GET /api/admin/stats
func (s *Server) GetAdminStats(c *fiber.Ctx) error {
	counts, err := s.postService.StatusCounts(c.Context())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	userCount, err := s.userService.CountUsers(c.Context())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"users": userCount,
		"posts": fiber.Map{
			"pending":  counts[models.PostStatusPending],
			"approved": counts[models.PostStatusApproved],
			"rejected": counts[models.PostStatusRejected],
		},
	})
}

// GetAllUsers handles GET /api/admin/users
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	users, err := s.userService.ListUsers(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// GetPendingPosts handles GET /api/admin/posts/pending, oldest first.
func (s *Server) GetPendingPosts(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	posts, err := s.moderationService.PendingQueue(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// ApprovePost handles POST /api/admin/posts/:id/approve. A post already
// decided by another reviewer returns a conflict.
func (s *Server) ApprovePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.moderationService.Approve(c.Context(), id, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// RejectPost handles POST /api/admin/posts/:id/reject. The author's token
// cost is refunded in the same transaction as the decision.
func (s *Server) RejectPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.moderationService.Reject(c.Context(), id, currentUserID(c), req.Reason)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// GetTokenRequests handles GET /api/admin/token-requests
func (s *Server) GetTokenRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	requests, err := s.tokenService.PendingRequests(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

// ApproveTokenRequest handles POST /api/admin/token-requests/:id/approve.
// Approval credits the requested amount through the ledger exactly once.
func (s *Server) ApproveTokenRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.tokenService.Approve(c.Context(), id, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(request)
}

// RejectTokenRequest handles POST /api/admin/token-requests/:id/reject
func (s *Server) RejectTokenRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	request, err := s.tokenService.Reject(c.Context(), id, currentUserID(c), req.Reason)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(request)
}
