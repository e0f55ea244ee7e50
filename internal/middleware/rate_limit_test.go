package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow-api/internal/ratelimit"
)

func rateLimitedApp(limit int) *fiber.App {
	limiter := ratelimit.New(ratelimit.Config{
		Enabled: true,
		API:     ratelimit.PlanLimits{Limit: limit, Window: time.Minute},
		Upload:  ratelimit.PlanLimits{Limit: limit, Window: time.Minute},
		AI:      ratelimit.PlanLimits{Limit: limit, Window: time.Minute},
	}, zerolog.Nop())

	app := fiber.New()
	app.Use(RateLimit(limiter))
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRateLimitSetsHeaders(t *testing.T) {
	app := rateLimitedApp(5)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
	require.Equal(t, "4", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestRateLimitRejectsAfterBudget(t *testing.T) {
	app := rateLimitedApp(2)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimitKeysAuthenticatedUsersSeparately(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Enabled: true,
		API:     ratelimit.PlanLimits{Limit: 1, Window: time.Minute},
	}, zerolog.Nop())

	app := fiber.New()
	userID := uint(1)
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Use(RateLimit(limiter))
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Same user exhausted their budget.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	// A different user still has a full bucket.
	userID = 2
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
