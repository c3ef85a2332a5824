package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nghyane/board-client/internal/json"
	"github.com/nghyane/board-client/internal/payload"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = srv.URL
	if opts.Tokens == nil {
		opts.Tokens = NewTokenCache()
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, base := range []string{"", "  ", "ftp://host", "://bad"} {
		if _, err := New(Options{BaseURL: base}); err == nil {
			t.Errorf("New(%q) succeeded", base)
		}
	}
	c, err := New(Options{BaseURL: "http://host:8000/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "http://host:8000" {
		t.Fatalf("BaseURL = %q", c.BaseURL())
	}
	if got := c.URL("apis/articles/", map[string]any{"page": 2}); got != "http://host:8000/apis/articles?page=2" {
		t.Fatalf("URL = %q", got)
	}
}

func TestSendGetQueryAndJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.RawQuery != "page=2&q=go" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		if r.Header.Get(CSRFHeader) != "" {
			t.Error("csrf header sent on GET")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"b":1,"a":[true]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	resp, err := c.Get(context.Background(), "/apis/articles", map[string]any{"q": "go", "page": 2, "empty": ""})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	obj, ok := resp.Payload.(*payload.Object)
	if !ok {
		t.Fatalf("payload = %T", resp.Payload)
	}
	if keys := obj.Keys(); len(keys) != 2 || keys[0] != "b" {
		t.Fatalf("keys = %v", keys)
	}

	var out struct {
		B int    `json:"b"`
		A []bool `json:"a"`
	}
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.B != 1 || len(out.A) != 1 || !out.A[0] {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestSendTextResponseWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "pong")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	resp, err := c.Get(context.Background(), "/ping", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	detail, _ := payload.Lookup(resp.Payload, "detail")
	if detail != "pong" {
		t.Fatalf("detail = %v", detail)
	}
}

func TestSendJSONBodyWithCSRF(t *testing.T) {
	var csrfCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultCSRFPath:
			csrfCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"csrf_token":"tok-1"}`)
		case "/apis/articles":
			if got := r.Header.Get(CSRFHeader); got != "tok-1" {
				t.Errorf("csrf header = %q", got)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"title":"hi"}` {
				t.Errorf("body = %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	for i := 0; i < 3; i++ {
		if _, err := c.Post(context.Background(), "/apis/articles", map[string]any{"title": "hi"}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	if n := csrfCalls.Load(); n != 1 {
		t.Fatalf("csrf endpoint called %d times, want 1", n)
	}
	if c.Tokens().Token() != "tok-1" {
		t.Fatalf("cached token = %q", c.Tokens().Token())
	}
}

func TestCSRFFetchedOnceUnderConcurrency(t *testing.T) {
	var csrfCalls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultCSRFPath {
			csrfCalls.Add(1)
			<-release
			_, _ = io.WriteString(w, `{"token":"shared"}`)
			return
		}
		if r.Header.Get(CSRFHeader) != "shared" {
			t.Errorf("csrf header = %q", r.Header.Get(CSRFHeader))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Delete(context.Background(), "/apis/articles/1", nil); err != nil {
				t.Errorf("Delete: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := csrfCalls.Load(); n != 1 {
		t.Fatalf("csrf endpoint called %d times, want 1", n)
	}
}

func TestCSRFCookiePreferred(t *testing.T) {
	var csrfCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: "from%20cookie", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		case DefaultCSRFPath:
			csrfCalls.Add(1)
			_, _ = io.WriteString(w, `{"csrf_token":"from-endpoint"}`)
		default:
			if got := r.Header.Get(CSRFHeader); got != "from cookie" {
				t.Errorf("csrf header = %q", got)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	if _, err := c.Get(context.Background(), "/login", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Patch(context.Background(), "/apis/articles/1", map[string]any{"title": "x"}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if n := csrfCalls.Load(); n != 0 {
		t.Fatalf("csrf endpoint called %d times, want 0", n)
	}
}

func TestCSRFFailureIsNotFatalOrCached(t *testing.T) {
	var csrfCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultCSRFPath {
			csrfCalls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get(CSRFHeader) != "" {
			t.Errorf("unexpected csrf header %q", r.Header.Get(CSRFHeader))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	for i := 0; i < 2; i++ {
		if _, err := c.Post(context.Background(), "/apis/x", nil); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	if n := csrfCalls.Load(); n != 2 {
		t.Fatalf("csrf endpoint called %d times, want 2", n)
	}
	if c.Tokens().Token() != "" {
		t.Fatal("failed fetch was cached")
	}
}

func TestTokenCacheReset(t *testing.T) {
	cache := NewTokenCache()
	cache.Set("")
	if cache.Token() != "" {
		t.Fatal("empty token stored")
	}
	tok, err := cache.Ensure(context.Background(), func(context.Context) (string, error) { return "a", nil })
	if err != nil || tok != "a" {
		t.Fatalf("Ensure = %q, %v", tok, err)
	}
	tok, _ = cache.Ensure(context.Background(), func(context.Context) (string, error) { return "b", nil })
	if tok != "a" {
		t.Fatalf("Ensure refetched: %q", tok)
	}
	cache.Reset()
	tok, _ = cache.Ensure(context.Background(), func(context.Context) (string, error) { return "b", nil })
	if tok != "b" {
		t.Fatalf("Ensure after reset = %q", tok)
	}
}

func TestSendMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultCSRFPath {
			_, _ = io.WriteString(w, `{"csrf_token":"t"}`)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("name"); got != "cat" {
			t.Errorf("name = %q", got)
		}
		f, h, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if h.Filename != "cat.txt" || string(data) != "meow" {
			t.Errorf("file = %s %q", h.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"url":"/media/cat.txt"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	resp, err := c.Post(context.Background(), "/apis/wysiwyg/image", map[string]any{
		"name":  "cat",
		"image": NewFile("cat.txt", []byte("meow")),
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if u, _ := payload.Lookup(resp.Payload, "url"); u != "/media/cat.txt" {
		t.Fatalf("url = %v", u)
	}
}

func TestSendDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			t.Errorf("accept-encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"ok":true}`))
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	resp, err := c.Get(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Raw) != `{"ok":true}` {
		t.Fatalf("raw = %q", resp.Raw)
	}
}

func TestSendHTTPErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{"detail string", 403, "application/json", `{"detail":"CSRF token missing"}`, "CSRF token missing"},
		{"validation list", 422, "application/json", `{"detail":[{"loc":["body","email"],"msg":"field required"},{"msg":"too short"}]}`, "field required\ntoo short"},
		{"detail object", 422, "application/json", `{"detail":{"email":["already taken"],"name":["bad"]}}`, "already taken"},
		{"plain text", 404, "text/plain", "no such article", "no such article"},
		{"json without declared type", 400, "text/plain", `{"detail":"x"}`, "x"},
		{"prefixed text", 400, "text/plain", "Error: boom", "boom"},
		{"broken json declared", 502, "application/json", "Error: upstream down", "upstream down"},
		{"empty body", 500, "", "", "Internal Server Error"},
		{"message field", 400, "application/json", `{"message":"bad input"}`, "bad input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			var shown []string
			c := newTestClient(t, srv, Options{Display: ErrorDisplayFunc(func(msg string) { shown = append(shown, msg) })})
			_, err := c.Get(context.Background(), "/apis/x", nil)
			e, ok := AsError(err)
			if !ok {
				t.Fatalf("err = %v (%T)", err, err)
			}
			if e.Kind != KindHTTP || !errors.Is(err, ErrHTTP) {
				t.Fatalf("kind = %s", e.Kind)
			}
			if e.StatusCode != tt.status || StatusOf(err) != tt.status {
				t.Fatalf("status = %d", e.StatusCode)
			}
			if e.Message != tt.want {
				t.Fatalf("message = %q, want %q", e.Message, tt.want)
			}
			if len(shown) != 1 || shown[0] != tt.want {
				t.Fatalf("display = %q", shown)
			}
		})
	}
}

func TestSendTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	c := newTestClient(t, srv, Options{Timeout: 50 * time.Millisecond})
	_, err := c.Get(context.Background(), "/slow", nil)
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v", err)
	}
	if e.Kind != KindTimeout || !e.Timeout() || !errors.Is(err, ErrTimeout) {
		t.Fatalf("kind = %s", e.Kind)
	}
	if e.Message != timeoutMessage {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestSendCanceledByCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "/", nil)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base, Tokens: NewTokenCache()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Get(context.Background(), "/", nil)
	e, ok := AsError(err)
	if !ok || e.Kind != KindNetwork {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasPrefix(e.Message, "Network error: ") || len(e.Message) == len("Network error: ") {
		t.Fatalf("message = %q", e.Message)
	}
	if e.Unwrap() == nil {
		t.Fatal("transport error not wrapped")
	}
}

func TestSendRejectsMethodBeforeIO(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	if _, err := c.Send(context.Background(), "PUT", "/", nil); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 0 {
		t.Fatal("server was contacted")
	}
}

func TestErrorFieldsFeedNormalizer(t *testing.T) {
	e := &Error{Kind: KindHTTP, StatusCode: 418, Status: "I'm a teapot"}
	fields := e.ErrorFields()
	if fields["statusText"] != "I'm a teapot" || fields["status"] != 418 {
		t.Fatalf("fields = %v", fields)
	}
	if _, ok := fields["data"]; ok {
		t.Fatal("data set without payload")
	}
	if e.Error() != "HTTP 418" {
		t.Fatalf("Error() = %q", e.Error())
	}
	if _, err := json.Marshal(fields); err != nil {
		t.Fatalf("fields not serializable: %v", err)
	}
}
