package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// SettingsHandler manages per-teacher grading settings.
type SettingsHandler struct {
	thresholds service.ThresholdService
	logger     zerolog.Logger
}

// NewSettingsHandler builds a settings handler instance.
func NewSettingsHandler(thresholds service.ThresholdService, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		thresholds: thresholds,
		logger:     logger.With().Str("component", "settings_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SettingsHandler) Register(router fiber.Router) {
	router.Get("/grading-threshold", h.getThreshold)
	router.Put("/grading-threshold", h.updateThreshold)
}

func (h *SettingsHandler) getThreshold(c *fiber.Ctx) error {
	teacherID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	resp, err := h.thresholds.Get(c.Context(), teacherID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading threshold retrieved", resp)
}

func (h *SettingsHandler) updateThreshold(c *fiber.Ctx) error {
	teacherID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.ThresholdUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.thresholds.Update(c.Context(), teacherID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading threshold updated", resp)
}

func (h *SettingsHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrTeacherNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "teacher not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
