package server

import (
	"insureconnect/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Upload size cap. Larger files should go through a dedicated asset pipeline.
const maxUploadBytes = 10 << 20

// UploadFile handles POST /api/uploads. The upload is metered through the
// ledger at one token per started KiB before the file is accepted; an
// insufficient balance rejects the upload without charging.
func (s *Server) UploadFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("A file is required"))
	}

	if fileHeader.Size <= 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("File is empty"))
	}
	if fileHeader.Size > maxUploadBytes {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("File exceeds the 10 MiB limit"))
	}

	requestID := c.FormValue("request_id")
	entry, err := s.ledgerService.ChargeUpload(c.Context(), currentUserID(c), fileHeader.Size, requestID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"filename":    fileHeader.Filename,
		"size_bytes":  fileHeader.Size,
		"tokens_paid": -entry.Amount,
		"transaction": entry,
	})
}
