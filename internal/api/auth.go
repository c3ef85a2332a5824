package api

import (
	"context"
	"errors"
	"strings"

	"github.com/nghyane/board-client/internal/errmsg"
	log "github.com/nghyane/board-client/internal/logging"
)

const (
	loginPath = "/apis/accounts/login"

	// DefaultRedirectBase prefixes the user id when no explicit redirect is
	// given.
	DefaultRedirectBase = "/views/accounts/account/"

	// DefaultLoginFailure is shown when a failed login carries no message.
	DefaultLoginFailure = "login failed"
)

// CSRFToken fetches a fresh token and stores it in the client's cache.
func (s *Service) CSRFToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"csrf_token"`
	}
	if _, err := s.call(ctx, "GET", s.client.CSRFPath(), nil, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("api: csrf endpoint returned no token")
	}
	s.client.Tokens().Set(out.Token)
	return out.Token, nil
}

// Login posts credentials as JSON. The backend also sets the session
// cookies in the client's jar.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	if _, err := s.call(ctx, "POST", loginPath, map[string]any{
		"email":    email,
		"password": password,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session and returns the backend's message.
func (s *Service) Logout(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if _, err := s.call(ctx, "POST", "/apis/accounts/logout", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// LoginOptions controls LoginAndRedirect.
type LoginOptions struct {
	// RedirectTo is used as is when set.
	RedirectTo string
	// RedirectBase is joined with UserID. Empty means DefaultRedirectBase.
	RedirectBase string
	// UserID is appended to RedirectBase when it is not blank.
	UserID string
	// FallbackMessage is shown when a failure carries no message.
	FallbackMessage string
	// OnError, when set, receives the failure message and cause. A panic in
	// it is recovered.
	OnError func(msg string, err error)
}

// LoginResult is the outcome of LoginAndRedirect.
type LoginResult struct {
	OK       bool
	Redirect string
	Data     *TokenResponse
	Message  string
	Err      error
}

// LoginTarget resolves where a successful login goes: RedirectTo, else
// RedirectBase+UserID when UserID is not blank, else "/".
func LoginTarget(opts LoginOptions) string {
	if opts.RedirectTo != "" {
		return opts.RedirectTo
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return "/"
	}
	base := opts.RedirectBase
	if base == "" {
		base = DefaultRedirectBase
	}
	return base + opts.UserID
}

// LoginAndRedirect logs in and computes the page to redirect to. It never
// returns an error: failures are reported in the result with a normalized
// message.
func (s *Service) LoginAndRedirect(ctx context.Context, email, password string, opts LoginOptions) LoginResult {
	fallback := opts.FallbackMessage
	if fallback == "" {
		fallback = DefaultLoginFailure
	}
	fail := func(cause any, err error) LoginResult {
		msg, ok := errmsg.Extract(cause)
		if !ok {
			msg = fallback
		}
		if opts.OnError != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Warnf("login error hook panicked: %v", r)
					}
				}()
				opts.OnError(msg, err)
			}()
		}
		return LoginResult{Message: msg, Err: err}
	}

	resp, err := s.client.Post(ctx, loginPath, map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fail(err, err)
	}
	var tokens TokenResponse
	if errDecode := resp.Decode(&tokens); errDecode != nil || tokens.AccessToken == "" {
		return fail(resp.Payload, errors.New("api: login response has no access token"))
	}
	return LoginResult{OK: true, Redirect: LoginTarget(opts), Data: &tokens}
}
