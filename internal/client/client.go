// Package client is the dispatcher every backend call goes through.
//
// Send builds the request (query string, JSON or multipart body), attaches
// the CSRF token on mutating calls, bounds the call with a timeout and
// turns every failure into an *Error whose Message is ready for display.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nghyane/board-client/internal/errmsg"
	"github.com/nghyane/board-client/internal/json"
	log "github.com/nghyane/board-client/internal/logging"
	"github.com/nghyane/board-client/internal/payload"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds each call.
const DefaultTimeout = 20 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// ErrorDisplay receives the normalized message of every failed call.
type ErrorDisplay interface {
	ShowError(msg string)
}

// ErrorDisplayFunc adapts a function to ErrorDisplay.
type ErrorDisplayFunc func(msg string)

// ShowError calls f(msg).
func (f ErrorDisplayFunc) ShowError(msg string) { f(msg) }

// Options configures a Client.
type Options struct {
	// BaseURL is prepended to every path. Trailing slashes are removed.
	BaseURL string
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
	// CSRFPath is the token endpoint. Empty means DefaultCSRFPath.
	CSRFPath string
	// ProxyURL routes calls through an http, https or socks5 proxy.
	ProxyURL string
	// UserAgent is sent when set.
	UserAgent string
	// HTTPClient replaces the default client. A cookie jar is added when
	// it has none.
	HTTPClient *http.Client
	// Tokens replaces the process-wide CSRF token cache.
	Tokens *TokenCache
	// Display, when set, is shown every failure message.
	Display ErrorDisplay
}

// Client sends requests to one backend. It is safe for concurrent use.
type Client struct {
	baseURL   string
	base      *url.URL
	timeout   time.Duration
	csrfPath  string
	userAgent string
	http      *http.Client
	tokens    *TokenCache
	display   ErrorDisplay
}

// Response is a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	// Payload is the decoded body: JSON when possible, otherwise
	// {"detail": text}.
	Payload any
	// Raw is the undecoded body.
	Raw []byte
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if json.Valid(r.Raw) {
		if err := json.Unmarshal(r.Raw, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
		return nil
	}
	return payload.Decode(r.Payload, out)
}

// New returns a client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must be http or https", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport, err := NewTransport(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Transport: transport}
	} else {
		copied := *hc
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	c := &Client{
		baseURL:   baseURL,
		base:      base,
		timeout:   opts.Timeout,
		csrfPath:  opts.CSRFPath,
		userAgent: opts.UserAgent,
		http:      hc,
		tokens:    opts.Tokens,
		display:   opts.Display,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.csrfPath == "" {
		c.csrfPath = DefaultCSRFPath
	}
	if !strings.HasPrefix(c.csrfPath, "/") {
		c.csrfPath = "/" + c.csrfPath
	}
	if c.tokens == nil {
		c.tokens = DefaultTokenCache()
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// CSRFPath returns the token endpoint path.
func (c *Client) CSRFPath() string { return c.csrfPath }

// Jar returns the cookie jar shared by all calls.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// Tokens returns the CSRF token cache in use.
func (c *Client) Tokens() *TokenCache { return c.tokens }

// URL joins path and the query built from q onto the base URL.
func (c *Client) URL(path string, q any) string {
	path = strings.TrimRight(path, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path + BuildQuery(q)
}

// Get sends a GET with params as the query.
func (c *Client) Get(ctx context.Context, path string, params any) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, params)
}

// Post sends a POST with params as the body.
func (c *Client) Post(ctx context.Context, path string, params any) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, params)
}

// Patch sends a PATCH with params as the body.
func (c *Client) Patch(ctx context.Context, path string, params any) (*Response, error) {
	return c.Send(ctx, http.MethodPatch, path, params)
}

// Delete sends a DELETE with params as the query.
func (c *Client) Delete(ctx context.Context, path string, params any) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, path, params)
}

// Send issues one call. method is GET, POST, PATCH or DELETE in any case;
// empty means GET. See Classify for how params are interpreted.
//
// Every failure is an *Error. Invalid methods and unencodable bodies fail
// before any I/O and are returned as plain errors.
func (c *Client) Send(ctx context.Context, method, path string, params any) (*Response, error) {
	plan, err := Classify(method, params)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodePlan(plan)
	if err != nil {
		return nil, err
	}
	fullURL := c.URL(path, plan.Query)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, plan.Method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if isMutating(plan.Method) {
		if tok := c.csrfToken(callCtx); tok != "" {
			req.Header.Set(CSRFHeader, tok)
		}
	}

	entry := log.WithFields(log.Fields{
		"request_id": requestID,
		"method":     plan.Method,
		"url":        log.MaskURL(fullURL),
		"body":       plan.Kind.String(),
	})
	entry.Debug("sending request")
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(transportError(ctx, callCtx, plan.Method, fullURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readBody(resp)
	if err != nil {
		return nil, c.fail(transportError(ctx, callCtx, plan.Method, fullURL, err))
	}
	entry.WithField("status", resp.StatusCode).
		WithField("elapsed", time.Since(start).Round(time.Millisecond)).
		Debug("response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(httpError(plan.Method, fullURL, resp, raw))
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Payload:    successPayload(resp.Header.Get("Content-Type"), raw),
		Raw:        raw,
	}, nil
}

func encodePlan(plan Plan) ([]byte, string, error) {
	switch plan.Kind {
	case JSONBody:
		data, err := json.Marshal(plan.Body)
		if err != nil {
			return nil, "", fmt.Errorf("client: encode json body: %w", err)
		}
		return data, "application/json", nil
	case MultipartBody:
		return plan.Form.Encode()
	}
	return nil, "", nil
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(io.LimitReader(body, maxBodySize))
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// successPayload decodes a 2xx body: JSON when declared or parseable,
// otherwise the text wrapped as {"detail": text}.
func successPayload(contentType string, raw []byte) any {
	if v, err := payload.Parse(raw); err == nil {
		return v
	}
	if isJSON(contentType) {
		log.Debugf("declared json response did not decode, passing text through")
	}
	return payload.Detail(string(raw))
}

// errorPayload decodes a non-2xx body the same way, preferring JSON only
// when the content type declares it. An empty body yields nil so the
// status text is shown instead. decoded is false when body wraps raw text.
func errorPayload(contentType string, raw []byte) (body any, decoded bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	if isJSON(contentType) {
		if v, err := payload.Parse(raw); err == nil {
			return v, true
		}
	}
	return payload.Detail(string(raw)), false
}

func httpError(method, fullURL string, resp *http.Response, raw []byte) *Error {
	body, decoded := errorPayload(resp.Header.Get("Content-Type"), raw)
	status := statusText(resp)
	// Text bodies go through the string rules: JSON sniffing and the
	// "Error:" prefix.
	var source any = body
	if body != nil && !decoded {
		source = string(raw)
	}
	msg, ok := errmsg.Extract(source)
	if !ok {
		msg = status
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &Error{
		Kind:       KindHTTP,
		Method:     method,
		URL:        fullURL,
		StatusCode: resp.StatusCode,
		Status:     status,
		Message:    msg,
		Payload:    body,
		Raw:        raw,
	}
}

// transportError classifies a failure before a complete response: the
// caller's own cancellation, the client's timer, or anything else.
func transportError(parent, callCtx context.Context, method, fullURL string, err error) *Error {
	e := &Error{Method: method, URL: fullURL, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		e.Kind, e.Message = KindCanceled, canceledMessage
	case errors.Is(callCtx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		e.Kind, e.Message = KindTimeout, timeoutMessage
	default:
		e.Kind = KindNetwork
		e.Message = "Network error: " + errmsg.Normalize(unwrapURLError(err))
	}
	return e
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}

// fail reports err to the display hook and the log, then returns it.
func (c *Client) fail(err *Error) error {
	entry := log.WithFields(log.Fields{
		"method": err.Method,
		"url":    log.MaskURL(err.URL),
		"kind":   err.Kind.String(),
	})
	if err.StatusCode != 0 {
		entry = entry.WithField("status", err.StatusCode)
	}
	if err.Kind == KindHTTP {
		entry.Debug(err.Message)
	} else {
		entry.Warn(err.Message)
	}
	if c.display != nil {
		c.display.ShowError(err.Message)
	}
	return err
}
