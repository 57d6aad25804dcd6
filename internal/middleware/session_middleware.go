package middleware

import (
	"context"
	"errors"
	"log/slog"

	"mediashelf/internal/models"
	"mediashelf/internal/services"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "identity"

// SessionResolver resolves and refreshes the caller's session from cookies.
type SessionResolver interface {
	Resolve(ctx context.Context, jar services.CookieJar) (*models.Identity, error)
	Refresh(ctx context.Context, jar services.CookieJar) (*models.Identity, error)
}

// ResolveSession resolves the caller's session from c's cookies. An expired
// access token is renewed from the refresh cookie before giving up.
func ResolveSession(c *fiber.Ctx, sessions SessionResolver) (*models.Identity, error) {
	jar := CookieJar(c)
	identity, err := sessions.Resolve(c.UserContext(), jar)
	if err != nil && jar.Get(services.RefreshTokenCookie) != "" {
		identity, err = sessions.Refresh(c.UserContext(), jar)
	}
	return identity, err
}

// SessionRequired resolves the session once per request and stores the
// identity for later handlers. Requests without a session are passed to
// onUnauthenticated.
func SessionRequired(sessions SessionResolver, onUnauthenticated fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := ResolveSession(c, sessions)
		if err != nil {
			if !errors.Is(err, services.ErrUnauthenticated) {
				slog.WarnContext(c.UserContext(), "session could not be resolved", "path", c.Path(), "err", err)
			}
			return onUnauthenticated(c)
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by SessionRequired, or nil.
func IdentityFrom(c *fiber.Ctx) *models.Identity {
	identity, _ := c.Locals(identityKey).(*models.Identity)
	return identity
}

// RedirectToSignIn sends browsers to the sign-in page.
func RedirectToSignIn(c *fiber.Ctx) error {
	return c.Redirect("/auth/signin", fiber.StatusSeeOther)
}

// RejectUnauthenticated answers API callers with 401.
func RejectUnauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": "Authentication required",
		"error":   services.ErrUnauthenticated.Error(),
	})
}
