package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nghyane/board-client/internal/json"
)

const (
	SessionFileName = "session.json"
	SessionVersion  = 1

	// AccessCookieName is the backend's login cookie.
	AccessCookieName = "access_token"
)

// SessionCookie is a persisted backend cookie.
type SessionCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Session is the login state kept between CLI invocations.
type Session struct {
	ServerURL string          `json:"server_url"`
	UserID    int64           `json:"user_id,omitempty"`
	Cookies   []SessionCookie `json:"cookies"`
	SavedAt   time.Time       `json:"saved_at"`
	Version   int             `json:"version"`
}

// HTTPCookies converts the saved cookies for a cookie jar. Expired cookies
// are dropped.
func (s *Session) HTTPCookies(now time.Time) []*http.Cookie {
	if s == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: path, Expires: c.Expires})
	}
	return out
}

// SessionFromCookies builds a session from the jar contents for serverURL.
func SessionFromCookies(serverURL string, cookies []*http.Cookie) *Session {
	s := &Session{ServerURL: serverURL, Version: SessionVersion}
	for _, c := range cookies {
		if c == nil || c.Value == "" {
			continue
		}
		s.Cookies = append(s.Cookies, SessionCookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires})
	}
	return s
}

var (
	sessionCache   *Session
	sessionCacheMu sync.RWMutex
)

// SessionDir follows the XDG base directory spec:
// $XDG_CONFIG_HOME/board-client, otherwise ~/.config/board-client.
func SessionDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "board-client")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "board-client")
	}
	return ""
}

// SessionFilePath returns the session file location, or "" when no home
// directory can be found.
func SessionFilePath() string {
	dir := SessionDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, SessionFileName)
}

// LoadSession returns the saved session for serverURL with priority
// ENV > cache > file. A nil session with a nil error means none is saved.
func LoadSession(serverURL string) (*Session, error) {
	if tok := strings.TrimSpace(os.Getenv("BOARD_ACCESS_TOKEN")); tok != "" {
		return &Session{
			ServerURL: serverURL,
			Cookies:   []SessionCookie{{Name: AccessCookieName, Value: tok, Path: "/"}},
			SavedAt:   time.Now(),
			Version:   SessionVersion,
		}, nil
	}

	sessionCacheMu.RLock()
	if sessionCache != nil && sessionCache.ServerURL == serverURL {
		s := *sessionCache
		sessionCacheMu.RUnlock()
		return &s, nil
	}
	sessionCacheMu.RUnlock()

	path := SessionFilePath()
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.ServerURL != serverURL || len(s.Cookies) == 0 {
		return nil, nil
	}

	sessionCacheMu.Lock()
	sessionCache = &s
	sessionCacheMu.Unlock()
	return &s, nil
}

// SaveSession writes s with owner-only permissions.
func SaveSession(s *Session) error {
	path := SessionFilePath()
	if path == "" {
		return fmt.Errorf("cannot determine session path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = SessionVersion
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	sessionCacheMu.Lock()
	sessionCache = s
	sessionCacheMu.Unlock()
	return nil
}

// ClearSession removes the saved session.
func ClearSession() error {
	InvalidateSessionCache()
	path := SessionFilePath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func InvalidateSessionCache() {
	sessionCacheMu.Lock()
	sessionCache = nil
	sessionCacheMu.Unlock()
}
