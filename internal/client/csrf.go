package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	log "github.com/nghyane/board-client/internal/logging"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	// CSRFHeader carries the anti-forgery token on mutating requests.
	CSRFHeader = "X-CSRF-Token"
	// DefaultCSRFPath is the backend endpoint that issues tokens.
	DefaultCSRFPath = "/apis/auth/csrf_token"
)

// csrfCookieNames are checked in order before falling back to the endpoint.
var csrfCookieNames = []string{"csrf_token", "csrftoken"}

// csrfTokenFields are read from the endpoint's JSON body in order.
var csrfTokenFields = []string{"csrf_token", "csrf", "token"}

// TokenCache holds a lazily fetched CSRF token. It starts empty, is filled
// at most once by the first successful fetch, and can be Reset.
type TokenCache struct {
	mu    sync.RWMutex
	token string
	group singleflight.Group
}

// NewTokenCache returns an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

var defaultTokens = NewTokenCache()

// DefaultTokenCache returns the process-wide cache used by clients that
// don't bring their own.
func DefaultTokenCache() *TokenCache {
	return defaultTokens
}

// Token returns the cached token, or "".
func (c *TokenCache) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Set stores tok. Empty tokens are ignored.
func (c *TokenCache) Set(tok string) {
	if tok == "" {
		return
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Reset empties the cache.
func (c *TokenCache) Reset() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Ensure returns the cached token or runs fetch to fill it. Concurrent
// callers share one in-flight fetch. A failed or empty fetch leaves the
// cache empty.
func (c *TokenCache) Ensure(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	if tok := c.Token(); tok != "" {
		return tok, nil
	}
	v, err, _ := c.group.Do("csrf", func() (any, error) {
		if tok := c.Token(); tok != "" {
			return tok, nil
		}
		tok, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.Set(tok)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cookieToken reads a CSRF cookie set by the backend for base.
func cookieToken(jar http.CookieJar, base *url.URL) string {
	if jar == nil || base == nil {
		return ""
	}
	cookies := jar.Cookies(base)
	for _, name := range csrfCookieNames {
		for _, ck := range cookies {
			if ck.Name == name && ck.Value != "" {
				if v, err := url.PathUnescape(ck.Value); err == nil {
					return v
				}
				return ck.Value
			}
		}
	}
	return ""
}

// csrfToken returns the token to attach, or "" when none is available.
// Failures are logged and swallowed.
func (c *Client) csrfToken(ctx context.Context) string {
	if tok := cookieToken(c.http.Jar, c.base); tok != "" {
		return tok
	}
	tok, err := c.tokens.Ensure(ctx, c.fetchCSRF)
	if err != nil {
		log.WithError(err).Warn("failed to fetch csrf token")
		return ""
	}
	return tok
}

func (c *Client) fetchCSRF(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.csrfPath, nil)
	if err != nil {
		return "", fmt.Errorf("csrf: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("csrf: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("csrf: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("csrf: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("csrf: response is not json")
	}
	for _, field := range csrfTokenFields {
		if r := gjson.GetBytes(body, field); r.Type == gjson.String && r.Str != "" {
			log.Debugf("csrf token fetched from %s", c.csrfPath)
			return r.Str, nil
		}
	}
	// The endpoint may only set the cookie.
	return cookieToken(c.http.Jar, c.base), nil
}
