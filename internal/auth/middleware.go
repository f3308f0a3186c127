package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated operator.
type Principal struct {
	SubjectID string
	Subject   string
}

// AuthMiddleware guards the operator API with bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle stores the token principal in the request locals.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	c.Locals(principalKey, &Principal{SubjectID: claims.SubjectID, Subject: claims.Subject})
	return c.Next()
}

// PrincipalFromContext returns the principal set by Handle.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
