package middleware

import (
	"net/http"
	"time"

	"mediashelf/internal/services"

	"github.com/gofiber/fiber/v2"
)

type fiberJar struct {
	c *fiber.Ctx
}

// CookieJar reads cookies from c's request and writes them onto c's response.
func CookieJar(c *fiber.Ctx) services.CookieJar {
	return fiberJar{c: c}
}

func (j fiberJar) Get(name string) string {
	return j.c.Cookies(name)
}

func (j fiberJar) Set(cookie *http.Cookie) {
	fc := &fiber.Cookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Path:     cookie.Path,
		Domain:   cookie.Domain,
		MaxAge:   cookie.MaxAge,
		Secure:   cookie.Secure,
		HTTPOnly: cookie.HttpOnly,
		SameSite: sameSite(cookie.SameSite),
	}
	if cookie.MaxAge < 0 {
		// fasthttp omits non-positive Max-Age, so expire explicitly.
		fc.MaxAge = 0
		fc.Expires = time.Unix(0, 0).UTC()
	}
	j.c.Cookie(fc)
}

func sameSite(mode http.SameSite) string {
	switch mode {
	case http.SameSiteStrictMode:
		return fiber.CookieSameSiteStrictMode
	case http.SameSiteNoneMode:
		return fiber.CookieSameSiteNoneMode
	case http.SameSiteDefaultMode:
		return fiber.CookieSameSiteDisabled
	default:
		return fiber.CookieSameSiteLaxMode
	}
}
