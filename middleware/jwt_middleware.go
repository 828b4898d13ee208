package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"funnelcrm/models"
	"funnelcrm/utils"
)

// UserLookup loads the account a token was issued to.
type UserLookup interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
}

// Protected authenticates the request from a Bearer token or the
// access_token cookie and stores the user in c.Locals("user").
func Protected(users UserLookup, tokens *utils.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
			}
		}

		claims, err := tokens.ParseToken(token, utils.TokenAccess)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}

		user, err := users.UserByID(c.UserContext(), claims.UserID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
		}

		if !user.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
		}

		// Logout and password changes bump the version
		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token version", nil)
		}

		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// RequireRoles lets the request through only for the given roles.
// It must run after Protected.
func RequireRoles(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*models.User)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}
		if _, ok := allowed[user.Role]; !ok {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions", nil)
		}
		return c.Next()
	}
}
