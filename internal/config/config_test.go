package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BOARD_SERVER_URL", "SERVER_URL", "BOARD_TIMEOUT", "BOARD_PROXY_URL", "BOARD_ACCESS_TOKEN"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigOptionalMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL || cfg.Timeout.Std() != DefaultTimeout || cfg.CSRFPath != DefaultCSRFPath {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigRequiredMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing required file")
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server-url: "https://board.example.com//"
timeout: 45
csrf-path: apis/auth/token
user-agent: " board-cli/1.0 "
debug: true
stub:
  csrf-cookie: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "https://board.example.com" {
		t.Errorf("server-url = %q", cfg.ServerURL)
	}
	if cfg.Timeout.Std() != 45*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout.Std())
	}
	if cfg.CSRFPath != "/apis/auth/token" {
		t.Errorf("csrf-path = %q", cfg.CSRFPath)
	}
	if cfg.UserAgent != "board-cli/1.0" || !cfg.Debug || !cfg.Stub.CSRFCookie {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Stub.Addr != "127.0.0.1:8000" {
		t.Errorf("stub addr default lost: %q", cfg.Stub.Addr)
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "server-url: [unterminated\n")
	if _, err := LoadConfigOptional(path, true); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "server-url: http://file:1\n")

	t.Setenv("SERVER_URL", "http://fallback:2/")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://fallback:2" {
		t.Fatalf("SERVER_URL ignored: %q", cfg.ServerURL)
	}

	t.Setenv("BOARD_SERVER_URL", "http://primary:3")
	t.Setenv("BOARD_TIMEOUT", "1500ms")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://primary:3" {
		t.Fatalf("BOARD_SERVER_URL not preferred: %q", cfg.ServerURL)
	}
	if cfg.Timeout.Std() != 1500*time.Millisecond {
		t.Fatalf("BOARD_TIMEOUT ignored: %v", cfg.Timeout.Std())
	}
}

func TestNormalizeRejectsRelativeURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServerURL = "board.example.com"
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	os.Unsetenv("BOARD_SERVER_URL")
	path := writeFile(t, dir, ".env", "BOARD_SERVER_URL=http://dotenv:9\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("BOARD_SERVER_URL"); got != "http://dotenv:9" {
		t.Fatalf("BOARD_SERVER_URL = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"20s", 20 * time.Second, false},
		{"30", 30 * time.Second, false},
		{"", 0, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	InvalidateSessionCache()

	s, err := LoadSession("http://host")
	if err != nil || s != nil {
		t.Fatalf("LoadSession on empty dir = %v, %v", s, err)
	}

	saved := &Session{
		ServerURL: "http://host",
		UserID:    42,
		Cookies: []SessionCookie{
			{Name: AccessCookieName, Value: "abc"},
			{Name: "old", Value: "x", Expires: time.Now().Add(-time.Hour)},
		},
	}
	if err := SaveSession(saved); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	InvalidateSessionCache()

	s, err = LoadSession("http://host")
	if err != nil || s == nil {
		t.Fatalf("LoadSession = %v, %v", s, err)
	}
	if s.UserID != 42 || s.Version != SessionVersion {
		t.Fatalf("session = %+v", s)
	}
	cookies := s.HTTPCookies(time.Now())
	if len(cookies) != 1 || cookies[0].Name != AccessCookieName || cookies[0].Path != "/" {
		t.Fatalf("cookies = %+v", cookies)
	}

	if other, _ := LoadSession("http://other"); other != nil {
		t.Fatal("session leaked to another server")
	}

	if err := ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if s, _ := LoadSession("http://host"); s != nil {
		t.Fatal("session survived ClearSession")
	}
}

func TestSessionFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOARD_ACCESS_TOKEN", "env-token")
	s, err := LoadSession("http://host")
	if err != nil || s == nil {
		t.Fatalf("LoadSession = %v, %v", s, err)
	}
	if s.Cookies[0].Value != "env-token" {
		t.Fatalf("cookies = %+v", s.Cookies)
	}
}
