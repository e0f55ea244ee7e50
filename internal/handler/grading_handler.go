package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/events"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// ReviewFeed exposes the stream of completed grading events.
type ReviewFeed interface {
	Subscribe() (<-chan events.GradingCompleted, func())
}

// GradingHandler manages the grading pipeline endpoints.
type GradingHandler struct {
	service service.GradingService
	feed    ReviewFeed
	logger  zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(service service.GradingService, feed ReviewFeed, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		feed:    feed,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/submissions/:id/enqueue", h.enqueue)
	router.Get("/results/:submissionId", h.result)
	router.Get("/reviews/pending", h.pendingReviews)
	router.Post("/reviews/:gradeId", h.review)

	router.Use("/reviews/feed", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/reviews/feed", websocket.New(h.feedConnection))
}

func (h *GradingHandler) enqueue(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.service.EnqueueGrading(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "grading job enqueued", resp)
}

func (h *GradingHandler) result(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.GetResult(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading result retrieved", result)
}

func (h *GradingHandler) pendingReviews(c *fiber.Ctx) error {
	pending, err := h.service.PendingReviews(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "pending reviews retrieved", pending)
}

func (h *GradingHandler) review(c *fiber.Ctx) error {
	gradeID := c.Params("gradeId")
	if gradeID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "grade id is required")
	}

	var payload dto.ReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	reviewerID, ok := c.Locals("user_id").(uint)
	if !ok || reviewerID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	result, err := h.service.Review(c.Context(), gradeID, reviewerID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review recorded", result)
}

// feedConnection streams grading-completed events until the client hangs up.
func (h *GradingHandler) feedConnection(conn *websocket.Conn) {
	eventsCh, cancel := h.feed.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info().Msg("review feed connected")
	defer h.logger.Info().Msg("review feed disconnected")

	for {
		select {
		case event, open := <-eventsCh:
			if !open {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrGradingSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "grading result not found")
	case errors.Is(err, service.ErrResultAlreadyReviewed):
		return utils.SendError(c, fiber.StatusConflict, "grading result already reviewed")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
