package middleware

import (
	"strings"

	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/gofiber/fiber/v2"
)

// RequireRole admits callers whose token role is one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		userRole, _ := c.Locals("role").(string)
		if _, ok := allowed[strings.ToLower(userRole)]; !ok || userRole == "" {
			return httpx.Forbidden(c, "forbidden", "Insufficient permissions")
		}
		return c.Next()
	}
}
