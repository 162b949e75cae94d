package middleware

import (
	"strings"

	"go-pos-ws/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

const cashierKey = "cashier"

// RequireAuth validates the bearer token and stores the cashier's claims on
// the request.
func RequireAuth(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals(cashierKey, claims)
		return c.Next()
	}
}

// Cashier returns the claims RequireAuth stored, or nil on unauthenticated routes.
func Cashier(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals(cashierKey).(*jwt.Claims)
	return claims
}

// RequirePrivilege checks if the authenticated cashier has the required privilege
func RequirePrivilege(requiredPrivilege string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Cashier(c)
		if claims == nil {
			return c.Status(403).JSON(fiber.Map{"error": "No privileges found"})
		}
		if !claims.HasPrivilege(requiredPrivilege) {
			return c.Status(403).JSON(fiber.Map{
				"error": "Forbidden: requires '" + requiredPrivilege + "' privilege",
			})
		}
		return c.Next()
	}
}
