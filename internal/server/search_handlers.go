package server

import (
	"strings"

	"insureconnect/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GlobalSearch handles GET /api/search. It matches approved posts by title or
// content and members by name or email; user results carry public profiles
// only. type narrows the search to "posts" or "users", default both.
func (s *Server) GlobalSearch(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Search query must be at least 2 characters"))
	}

	kind := c.Query("type", "all")
	switch kind {
	case "all", "posts", "users":
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Search type must be all, posts, or users"))
	}

	limit := c.QueryInt("limit", 10)
	viewerID, _ := s.optionalUserID(c)

	results := fiber.Map{}
	if kind == "all" || kind == "posts" {
		posts, err := s.postService.Search(c.Context(), query, viewerID, limit)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		results["posts"] = posts
	}
	if kind == "all" || kind == "users" {
		users, err := s.userService.SearchUsers(c.Context(), query, limit)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		results["users"] = users
	}

	return c.JSON(results)
}
