package server

import (
	"insureconnect/internal/models"
	"insureconnect/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateTokenRequest handles POST /api/tokens/requests. Tokens are not
// purchasable self-service; an admin reviews every request.
func (s *Server) CreateTokenRequest(c *fiber.Ctx) error {
	var req struct {
		Amount      int     `json:"amount"`
		Price       float64 `json:"price"`
		Description string  `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	tokenRequest, err := s.tokenService.RequestTokens(c.Context(), service.RequestTokensInput{
		UserID:      currentUserID(c),
		Amount:      req.Amount,
		Price:       req.Price,
		Description: req.Description,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tokenRequest)
}

// GetMyTokenRequests handles GET /api/tokens/requests/me
func (s *Server) GetMyTokenRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	requests, err := s.tokenService.MyRequests(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}
