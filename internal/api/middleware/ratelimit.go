package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit ограничивает число запросов на аккаунт скользящим окном.
// Без аккаунта ключом служит IP.
func RateLimit(requests int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        requests,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := AccountID(c); id != "" {
				return "account:" + id
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "слишком много запросов, попробуйте позже",
				"code":  "RATE_LIMITED",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
