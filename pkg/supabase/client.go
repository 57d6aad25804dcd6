// Package supabase wraps the Supabase Auth (GoTrue) API: OAuth authorize URLs,
// PKCE code exchange, refresh, user lookup and logout.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// Config holds the project URL and the public (anon) API key.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// Client talks to the /auth/v1 endpoints of a Supabase project.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	auth    gotrue.Client
}

// User is the subset of the GoTrue user object the application reads.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// MetadataString returns the first non-empty string value among keys.
func (u User) MetadataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := u.UserMetadata[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Session is the token pair returned by the token endpoint.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("supabase auth %d: %s", e.Status, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase auth %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("supabase auth %d", e.Status)
}

// NewClient builds a client. The URL is the project root, e.g. https://xyz.supabase.co.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.URL, "/")
	return &Client{
		baseURL: baseURL,
		anonKey: cfg.AnonKey,
		http:    httpClient,
		auth:    gotrue.New("", cfg.AnonKey).WithCustomGoTrueURL(baseURL + "/auth/v1"),
	}
}

// api returns the gotrue client bound to ctx, authenticated with token when
// it is not empty.
func (c *Client) api(ctx context.Context, token string) gotrue.Client {
	api := c.auth.WithClient(http.Client{
		Transport: contextTransport{ctx: ctx, base: c.http.Transport},
		Timeout:   c.http.Timeout,
	})
	if token != "" {
		api = api.WithToken(token)
	}
	return api
}

// contextTransport attaches ctx to requests built without one.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(t.ctx))
}

// AuthorizeURL returns the URL that starts an OAuth flow with provider using
// the PKCE S256 challenge. Extra query values are forwarded to the provider.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string, extra url.Values) string {
	params := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("provider", provider)
	params.Set("redirect_to", redirectTo)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "s256")
	return c.baseURL + "/auth/v1/authorize?" + params.Encode()
}

// ExchangeCode trades a one-time authorization code for a session. The pkce
// grant reads the code from auth_code, which gotrue-go does not send.
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*Session, error) {
	body := map[string]string{"auth_code": authCode, "code_verifier": codeVerifier}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	res, err := c.api(ctx, "").RefreshToken(refreshToken)
	if err != nil {
		return nil, apiError("refresh session", err)
	}
	return sessionFrom(res.Session), nil
}

// GetUser returns the user behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	res, err := c.api(ctx, accessToken).GetUser()
	if err != nil {
		return nil, apiError("get user", err)
	}
	user := userFrom(res.User)
	return &user, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.api(ctx, accessToken).Logout(); err != nil {
		return apiError("logout", err)
	}
	return nil
}

func sessionFrom(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		User:         userFrom(s.User),
	}
}

func userFrom(u types.User) User {
	return User{
		ID:           u.ID.String(),
		Email:        u.Email,
		UserMetadata: u.UserMetadata,
	}
}

// apiError turns gotrue-go's "response status code N: <body>" errors back
// into an *APIError. Transport failures are wrapped as they are.
func apiError(op string, err error) error {
	var status int
	msg := err.Error()
	if _, scanErr := fmt.Sscanf(msg, "response status code %d", &status); scanErr != nil {
		return fmt.Errorf("supabase auth %s: %w", op, err)
	}
	apiErr := &APIError{Status: status}
	if _, body, ok := strings.Cut(msg, ": "); ok {
		fillAPIError(apiErr, []byte(body))
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase auth %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeAPIError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	fillAPIError(apiErr, raw)
	return apiErr
}

func fillAPIError(apiErr *APIError, raw []byte) {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Code             any    `json:"code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	apiErr.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	if s, ok := payload.Code.(string); ok && apiErr.Code == "" {
		apiErr.Code = s
	}
	apiErr.Description = firstNonEmpty(payload.ErrorDescription, payload.Msg, payload.Message)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
