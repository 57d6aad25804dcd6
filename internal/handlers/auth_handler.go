package handlers

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"mediashelf/internal/middleware"
	"mediashelf/internal/services"
	"mediashelf/internal/views"

	"github.com/gofiber/fiber/v2"
)

const defaultLanding = "/profile"

// AuthHandler handles sign-in, the OAuth callback and sign-out.
type AuthHandler struct {
	sessions *services.SessionService
	users    services.AppUserResolver
	siteURL  string
}

// NewAuthHandler creates a new AuthHandler. siteURL is the public origin used
// for the OAuth callback; when empty the request's own origin is used.
func NewAuthHandler(sessions *services.SessionService, users services.AppUserResolver, siteURL string) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		siteURL:  strings.TrimRight(siteURL, "/"),
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/", h.HandleHome)
	authRoutes := router.Group("/auth")
	authRoutes.Get("/signin", h.HandleSignIn)
	authRoutes.Get("/login/:provider", h.HandleLogin)
	authRoutes.Get("/callback", h.HandleCallback)
	authRoutes.Post("/signout", h.HandleSignOut)
}

// HandleHome sends signed-in users to their library and everyone else to sign-in.
func (h *AuthHandler) HandleHome(c *fiber.Ctx) error {
	if _, err := middleware.ResolveSession(c, h.sessions); err == nil {
		return c.Redirect(defaultLanding, fiber.StatusSeeOther)
	}
	return middleware.RedirectToSignIn(c)
}

// HandleSignIn renders the provider choices.
func (h *AuthHandler) HandleSignIn(c *fiber.Ctx) error {
	return c.Render("signin", views.SignInPage{
		Providers: h.sessions.Providers(),
		Error:     c.Query("error"),
	})
}

// HandleLogin redirects to the identity provider for provider.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	provider := c.Params("provider")
	next := safeNext(c.Query("next"))
	callback := h.origin(c) + "/auth/callback?next=" + url.QueryEscape(next)

	target, err := h.sessions.SignInURL(provider, callback, middleware.CookieJar(c))
	if err != nil {
		slog.WarnContext(c.UserContext(), "sign-in rejected", "provider", provider, "err", err)
		return signInWithError(c, "Unknown sign-in provider")
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// HandleCallback completes the OAuth exchange, provisions the app user and
// redirects to the requested page.
func (h *AuthHandler) HandleCallback(c *fiber.Ctx) error {
	if reason := firstNonEmpty(c.Query("error_description"), c.Query("error")); reason != "" {
		return signInWithError(c, reason)
	}

	identity, err := h.sessions.CompleteOAuthExchange(c.UserContext(), c.Query("code"), middleware.CookieJar(c))
	if err != nil {
		var exchangeErr *services.AuthExchangeError
		if errors.As(err, &exchangeErr) {
			slog.WarnContext(c.UserContext(), "oauth exchange failed", "reason", exchangeErr.Reason, "err", exchangeErr.Err)
			return signInWithError(c, exchangeErr.Reason)
		}
		slog.ErrorContext(c.UserContext(), "oauth exchange failed", "err", err)
		return signInWithError(c, "Could not complete sign-in")
	}

	if _, err := h.users.EnsureAppUser(c.UserContext(), identity); err != nil {
		slog.ErrorContext(c.UserContext(), "app user provisioning failed", "err", err)
		return signInWithError(c, "Could not load your account, please try again")
	}
	return c.Redirect(safeNext(c.Query("next")), fiber.StatusSeeOther)
}

// HandleSignOut ends the session and returns to sign-in.
func (h *AuthHandler) HandleSignOut(c *fiber.Ctx) error {
	if err := h.sessions.SignOut(c.UserContext(), middleware.CookieJar(c)); err != nil {
		slog.WarnContext(c.UserContext(), "sign-out failed", "err", err)
	}
	return middleware.RedirectToSignIn(c)
}

func (h *AuthHandler) origin(c *fiber.Ctx) string {
	if h.siteURL != "" {
		return h.siteURL
	}
	return c.BaseURL()
}

func signInWithError(c *fiber.Ctx, reason string) error {
	return c.Redirect("/auth/signin?error="+url.QueryEscape(reason), fiber.StatusSeeOther)
}

// safeNext keeps redirects on this site: only absolute paths are allowed,
// never protocol-relative ones.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultLanding
	}
	return next
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
