// CLAUDE:SUMMARY Cookie-session HTTP transport to a UniFi controller: login, bounded JSON/page reads, StatusError, request metrics.
// Package transport speaks HTTP to a UniFi controller on behalf of one
// session: it keeps the session cookie, bounds every body it reads and turns
// non-200 answers into *StatusError.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/unifistat/horosafe"
)

// LoginPath is the controller's session login endpoint.
const LoginPath = "/api/login"

const logoutPath = "/api/logout"

// Config configures a Client.
type Config struct {
	// BaseURL is scheme://host[:port] of the controller, without credentials.
	BaseURL string
	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration
	// MaxBytes bounds each response body. Default: horosafe.MaxResponseBody.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
	// InsecureSkipVerify accepts self-signed controller certificates.
	InsecureSkipVerify bool
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "unifistat/1.0"
	}
}

// StatusError is returned for any controller answer other than 200.
type StatusError struct {
	Endpoint   string
	StatusCode int
	// Msg is meta.msg from the controller envelope, when present.
	Msg string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("unifi: %s: http %d: %s", e.Endpoint, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("unifi: %s: http %d", e.Endpoint, e.StatusCode)
}

// Client performs requests against one controller with one cookie jar.
type Client struct {
	http   *http.Client
	base   *url.URL
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. When hc is nil a client is built from cfg; when hc
// has no cookie jar a shallow copy with a fresh jar is used.
func New(cfg Config, logger *slog.Logger, hc *http.Client) (*Client, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := horosafe.ValidateControllerURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("transport: base url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("transport: cookie jar: %w", err)
	}

	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed controllers
		}
		hc = &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		}
	} else {
		cp := *hc
		hc = &cp
	}
	if hc.Jar == nil {
		hc.Jar = jar
	}

	return &Client{http: hc, base: base, cfg: cfg, logger: logger}, nil
}

// BaseURL returns the controller base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Login opens the session. The controller answers 200 and sets the session
// cookie on success.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	_, err := c.do(ctx, http.MethodPost, LoginPath, body)
	return err
}

// Logout closes the session. Errors are returned but the jar is left as is.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, logoutPath, struct{}{})
	return err
}

// GetJSON issues a GET and decodes the answer into out with numbers kept as
// json.Number.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// PostJSON issues a POST with in as JSON body and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// GetPage issues a GET and returns the raw body of a 200 answer. It
// satisfies taxonomy.PageFetcher.
func (c *Client) GetPage(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	u := c.base.JoinPath(path)

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("transport: encode %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("transport: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	label := endpointLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(label, "error").Inc()
		return nil, fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, c.cfg.MaxBytes)
	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.DebugContext(ctx, "controller request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Msg: metaMsg(body)}
	}
	return body, nil
}

func decode(path string, body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("transport: decode %s: %w", path, err)
	}
	return nil
}

// metaMsg extracts meta.msg from a controller error envelope.
func metaMsg(body []byte) string {
	var env struct {
		Meta struct {
			Msg string `json:"msg"`
		} `json:"meta"`
	}
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	return env.Meta.Msg
}

// endpointLabel folds site names and build strings out of a path so the
// metric label set stays bounded.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "api" && parts[1] == "s":
		parts[2] = "{site}"
	case len(parts) >= 3 && parts[0] == "manage" && parts[1] == "angular":
		parts[2] = "{build}"
	}
	return "/" + strings.Join(parts, "/")
}
