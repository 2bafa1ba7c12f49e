package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds limits for the admin API surface.
type RateLimitConfig struct {
	APIMax        int
	APIExpiration time.Duration

	// Write endpoints (settings updates, manual flush) get a tighter budget.
	WriteMax        int
	WriteExpiration time.Duration
}

// DefaultRateLimitConfig returns sensible limits, overridable via environment.
func DefaultRateLimitConfig() *RateLimitConfig {
	config := &RateLimitConfig{
		APIMax:          120,
		APIExpiration:   1 * time.Minute,
		WriteMax:        30,
		WriteExpiration: 1 * time.Minute,
	}

	if v := os.Getenv("RATE_LIMIT_API_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.APIMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WRITE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WriteMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.APIMax = 1000
		config.WriteMax = 200
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// APIRateLimiter limits all admin API requests per client IP.
func APIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.APIMax,
		Expiration: config.APIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "api:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] API limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.APIExpiration.Seconds()),
			})
		},
	})
}

// WriteRateLimiter limits mutating endpoints per client IP.
func WriteRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WriteMax,
		Expiration: config.WriteExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "write:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Write limit reached for IP: %s on %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many write requests to this endpoint.",
				"retry_after": int(config.WriteExpiration.Seconds()),
			})
		},
	})
}
