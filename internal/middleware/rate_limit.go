package middleware

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/gradeflow/gradeflow-api/internal/ratelimit"
)

// RateLimit enforces the token-bucket budget for the plan covering the
// request path. Authenticated requests are keyed per user so one teacher
// cannot exhaust another's budget; anonymous requests fall back to the
// client IP.
func RateLimit(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plan := ratelimit.ResolvePlan(c.Path())
		result := limiter.TryConsume(clientKey(c), plan)

		if result.Limit > 0 {
			c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}

		if !result.Allowed {
			c.Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"message":     "rate limit exceeded",
				"retry_after": result.RetryAfterSeconds,
			})
		}

		return c.Next()
	}
}

func clientKey(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(uint); ok && userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}

	return "ip:" + c.IP()
}
