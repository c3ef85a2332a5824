// Package cmd implements the board CLI commands on top of the api
// package. Login state is kept in the session file between invocations.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nghyane/board-client/internal/api"
	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/config"
	"github.com/nghyane/board-client/internal/json"
	log "github.com/nghyane/board-client/internal/logging"
	"github.com/skratchdot/open-golang/open"
)

// Options configures a Runner.
type Options struct {
	// Out receives command output. Nil means os.Stdout.
	Out io.Writer
	// OpenBrowser opens created article pages.
	OpenBrowser bool
	// Display is shown every failed call's message.
	Display client.ErrorDisplay
	// HTTPClient and Tokens are passed to the dispatcher, mainly for tests.
	HTTPClient *http.Client
	Tokens     *client.TokenCache
	// NoSession skips loading and saving the session file.
	NoSession bool
}

// Runner executes CLI commands against one backend.
type Runner struct {
	cfg  *config.Config
	svc  *api.Service
	base *url.URL
	out  io.Writer
	opts Options
}

// openURL is replaced in tests.
var openURL = open.Run

// NewRunner builds the dispatcher from cfg and restores the saved session.
func NewRunner(cfg *config.Config, opts Options) (*Runner, error) {
	c, err := client.New(client.Options{
		BaseURL:    cfg.ServerURL,
		Timeout:    cfg.Timeout.Std(),
		CSRFPath:   cfg.CSRFPath,
		ProxyURL:   cfg.ProxyURL,
		UserAgent:  cfg.UserAgent,
		HTTPClient: opts.HTTPClient,
		Tokens:     opts.Tokens,
		Display:    opts.Display,
	})
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(c.BaseURL() + "/")
	if err != nil {
		return nil, err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	r := &Runner{cfg: cfg, svc: api.New(c), base: base, out: out, opts: opts}
	if !opts.NoSession {
		r.restoreSession()
	}
	return r, nil
}

// Service returns the typed endpoint wrapper.
func (r *Runner) Service() *api.Service { return r.svc }

func (r *Runner) restoreSession() {
	s, err := config.LoadSession(r.cfg.ServerURL)
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable session")
		return
	}
	if s == nil {
		return
	}
	cookies := s.HTTPCookies(time.Now())
	r.svc.Client().Jar().SetCookies(r.base, cookies)
	log.Debugf("restored %d session cookies", len(cookies))
}

// saveSession persists the jar's cookies for the next invocation.
func (r *Runner) saveSession(userID int64) error {
	if r.opts.NoSession {
		return nil
	}
	s := config.SessionFromCookies(r.cfg.ServerURL, r.svc.Client().Jar().Cookies(r.base))
	s.UserID = userID
	if len(s.Cookies) == 0 {
		return errors.New("login succeeded but the backend set no cookies")
	}
	return config.SaveSession(s)
}

// Run dispatches args[0] as a command.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, rest := args[0], args[1:]
	if fn, ok := commands[name]; ok {
		return fn(ctx, r, rest)
	}
	if _, err := client.ParseMethod(name); err == nil && name != "" {
		return r.raw(ctx, name, rest)
	}
	return fmt.Errorf("unknown command %q\n%s", name, usage)
}

func (r *Runner) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// pageURL resolves a site path against the backend base.
func (r *Runner) pageURL(path string) string {
	return strings.TrimRight(r.svc.Client().BaseURL(), "/") + path
}

func (r *Runner) openPage(path string) {
	if !r.opts.OpenBrowser {
		return
	}
	target := r.pageURL(path)
	if err := openURL(target); err != nil {
		log.WithError(err).Warnf("failed to open %s", target)
	}
}
