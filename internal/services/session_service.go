package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"mediashelf/internal/models"
	"mediashelf/pkg/supabase"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/oauth2"
)

// Cookie names shared with the identity provider's SSR helpers.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	VerifierCookie     = "sb-code-verifier"
)

const (
	refreshCookieMaxAge  = 30 * 24 * 60 * 60
	verifierCookieMaxAge = 10 * 60
	defaultAccessMaxAge  = 60 * 60
)

// ErrUnknownProvider is returned for a sign-in provider that is not enabled.
var ErrUnknownProvider = errors.New("unknown sign-in provider")

// IdentityProvider is the subset of the Supabase Auth API the session layer uses.
type IdentityProvider interface {
	AuthorizeURL(provider, redirectTo, codeChallenge string, extra url.Values) string
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*supabase.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// CookieJar reads cookies from the inbound request and writes them onto the
// outgoing response.
type CookieJar interface {
	Get(name string) string
	Set(cookie *http.Cookie)
}

// SessionConfig configures a SessionService.
type SessionConfig struct {
	// JWTSecret enables local verification of access tokens. When empty every
	// Resolve asks the identity provider.
	JWTSecret     string
	SecureCookies bool
	Providers     []string
}

// SessionService resolves, establishes and ends user sessions.
type SessionService struct {
	idp       IdentityProvider
	jwtSecret []byte
	secure    bool
	providers []string
}

// NewSessionService creates a new SessionService.
func NewSessionService(idp IdentityProvider, cfg SessionConfig) *SessionService {
	s := &SessionService{
		idp:       idp,
		secure:    cfg.SecureCookies,
		providers: cfg.Providers,
	}
	if cfg.JWTSecret != "" {
		s.jwtSecret = []byte(cfg.JWTSecret)
	}
	return s
}

// Providers returns the enabled sign-in providers in display order.
func (s *SessionService) Providers() []string {
	out := make([]string, len(s.providers))
	copy(out, s.providers)
	return out
}

// Resolve returns the identity behind the access-token cookie. It never
// writes cookies.
func (s *SessionService) Resolve(ctx context.Context, jar CookieJar) (*models.Identity, error) {
	token := jar.Get(AccessTokenCookie)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	if s.jwtSecret != nil {
		return s.identityFromToken(token)
	}

	user, err := s.idp.GetUser(ctx, token)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return identityFromUser(*user), nil
}

func (s *SessionService) identityFromToken(tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyAudience("authenticated", true) {
		return nil, ErrUnauthenticated
	}

	identity := &models.Identity{}
	identity.Subject, _ = claims["sub"].(string)
	identity.Email, _ = claims["email"].(string)
	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		u := supabase.User{UserMetadata: meta}
		identity.Name = u.MetadataString("full_name", "name", "user_name")
		identity.AvatarURL = u.MetadataString("avatar_url", "picture")
	}
	if identity.Subject == "" {
		return nil, ErrUnauthenticated
	}
	return identity, nil
}

// SignInURL stores a fresh PKCE verifier in the jar and returns the
// provider's authorize URL.
func (s *SessionService) SignInURL(provider, redirectTo string, jar CookieJar) (string, error) {
	if !s.providerEnabled(provider) {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	verifier := oauth2.GenerateVerifier()
	jar.Set(s.cookie(VerifierCookie, verifier, verifierCookieMaxAge))

	extra := url.Values{}
	if provider == "google" {
		extra.Set("access_type", "offline")
		extra.Set("prompt", "consent")
	}
	return s.idp.AuthorizeURL(provider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier), extra), nil
}

func (s *SessionService) providerEnabled(provider string) bool {
	for _, p := range s.providers {
		if p == provider {
			return true
		}
	}
	return false
}

// CompleteOAuthExchange trades a one-time authorization code for a session
// and writes the session cookies through jar, which must write onto the
// response being built.
func (s *SessionService) CompleteOAuthExchange(ctx context.Context, code string, jar CookieJar) (*models.Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &AuthExchangeError{Reason: "missing authorization code"}
	}
	verifier := jar.Get(VerifierCookie)
	if verifier == "" {
		return nil, &AuthExchangeError{Reason: "sign-in attempt expired, please try again"}
	}

	sess, err := s.idp.ExchangeCode(ctx, code, verifier)
	jar.Set(s.expired(VerifierCookie))
	if err != nil {
		reason := "could not complete sign-in"
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Description != "" {
			reason = apiErr.Description
		}
		return nil, &AuthExchangeError{Reason: reason, Err: err}
	}

	identity := identityFromUser(sess.User)
	if normalizeEmail(identity.Email) == "" {
		return nil, &AuthExchangeError{Reason: "account has no email address"}
	}
	s.writeSession(jar, sess)
	return identity, nil
}

// Refresh trades the refresh-token cookie for a new session and rewrites
// both session cookies.
func (s *SessionService) Refresh(ctx context.Context, jar CookieJar) (*models.Identity, error) {
	refreshToken := jar.Get(RefreshTokenCookie)
	if refreshToken == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.idp.RefreshSession(ctx, refreshToken)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			s.clearSession(jar)
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	s.writeSession(jar, sess)
	return identityFromUser(sess.User), nil
}

// SignOut revokes the session at the provider and clears the session
// cookies. Revocation failures are logged only.
func (s *SessionService) SignOut(ctx context.Context, jar CookieJar) error {
	if token := jar.Get(AccessTokenCookie); token != "" {
		if err := s.idp.SignOut(ctx, token); err != nil {
			slog.WarnContext(ctx, "session revocation failed", "err", err)
		}
	}
	s.clearSession(jar)
	jar.Set(s.expired(VerifierCookie))
	return nil
}

func (s *SessionService) writeSession(jar CookieJar, sess *supabase.Session) {
	maxAge := sess.ExpiresIn
	if maxAge <= 0 {
		maxAge = defaultAccessMaxAge
	}
	jar.Set(s.cookie(AccessTokenCookie, sess.AccessToken, maxAge))
	if sess.RefreshToken != "" {
		jar.Set(s.cookie(RefreshTokenCookie, sess.RefreshToken, refreshCookieMaxAge))
	}
}

func (s *SessionService) clearSession(jar CookieJar) {
	jar.Set(s.expired(AccessTokenCookie))
	jar.Set(s.expired(RefreshTokenCookie))
}

func (s *SessionService) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *SessionService) expired(name string) *http.Cookie {
	return s.cookie(name, "", -1)
}

func identityFromUser(u supabase.User) *models.Identity {
	return &models.Identity{
		Subject:   u.ID,
		Email:     u.Email,
		Name:      u.MetadataString("full_name", "name", "user_name"),
		AvatarURL: u.MetadataString("avatar_url", "picture"),
	}
}
