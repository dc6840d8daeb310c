package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ProviderRateLimit caps requests per provider (or client IP when the
// provider header is absent) in a fixed one-minute window. Without Redis, or
// when Redis fails, requests pass.
func ProviderRateLimit(cache *redis.Client, name string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.Get("X-Provider-ID")
		if subject == "" {
			subject = c.IP()
		}
		window := time.Now().UTC().Truncate(time.Minute).Unix()
		key := "rl:" + name + ":" + subject + ":" + strconv.FormatInt(window, 10)

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		if remaining := int64(maxPerMin) - cnt; remaining >= 0 {
			c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		} else {
			c.Set("X-RateLimit-Remaining", "0")
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
