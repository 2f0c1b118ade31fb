package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-sync/internal/auth"
)

// AuthMiddleware validates the bearer access token and stores the caller's
// user id in locals under "user_id".
func AuthMiddleware(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if h == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
		}
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid auth"})
		}
		uid, err := tokens.ParseAccess(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}
