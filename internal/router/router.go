package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gradeflow/gradeflow-api/internal/config"
	"github.com/gradeflow/gradeflow-api/internal/handler"
	"github.com/gradeflow/gradeflow-api/internal/middleware"
	"github.com/gradeflow/gradeflow-api/internal/models"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler  *handler.GradingHandler
	SettingsHandler *handler.SettingsHandler
	UploadHandler   *handler.UploadHandler
	ExamHandler     *handler.ExamHandler
	JWTMiddleware   fiber.Handler
	RateLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	rateLimiter := deps.RateLimiter
	if rateLimiter == nil {
		rateLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	teacherOnly := middleware.RequireRole(models.RoleTeacher, models.RoleAdmin)

	if deps.GradingHandler != nil {
		grading := api.Group("/grading", jwtMiddleware, rateLimiter, teacherOnly)
		deps.GradingHandler.Register(grading)
	}

	if deps.SettingsHandler != nil {
		settings := api.Group("/settings", jwtMiddleware, rateLimiter, teacherOnly)
		deps.SettingsHandler.Register(settings)
	}

	if deps.UploadHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware, rateLimiter, teacherOnly)
		deps.UploadHandler.Register(submissions)
	}

	if deps.ExamHandler != nil {
		exams := api.Group("/ai", jwtMiddleware, rateLimiter, teacherOnly)
		deps.ExamHandler.Register(exams)
	}
}
