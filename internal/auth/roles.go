package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// RequireOperator ensures the principal carries the operator subject.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Subject != SubjectOperator {
			return apperrors.NewForbidden("operator role required")
		}
		return c.Next()
	}
}
