package middleware

import (
	"errors"
	"log"
	"strings"

	"phantom-mask/internal/repository"
	"phantom-mask/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RequireAuth validates the bearer token and sets user_id / user_name for downstream handlers
func RequireAuth(txm repository.TxManager, userRepo repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		claims, err := jwt.ValidateToken(parts[1])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		// the buyer must still exist
		var name string
		err = txm.Snapshot(c.UserContext(), func(tx *gorm.DB) error {
			user, err := userRepo.FindByID(tx, claims.UserID)
			if err != nil {
				return err
			}
			name = user.Name
			return nil
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(401).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			log.Printf("auth: load user %d: %v", claims.UserID, err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("user_name", name)

		return c.Next()
	}
}
