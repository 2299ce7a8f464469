// Package client is the network collaborator used to download player scripts
// and pages. It wraps net/http with retries, optional rate limiting, cookies
// loaded from a Netscape cookies.txt file, and response decompression.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/corpix/uarand"
	"github.com/mengzhuo/cookiestxt"
	"golang.org/x/time/rate"

	"github.com/ytget/descramble/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	successMinCode   = http.StatusOK                  // 200
	retryableMinCode = http.StatusInternalServerError // 500
	maxBodyBytes     = 32 << 20
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	// Content-Encoding is negotiated and decoded by Fetch so brotli works too.
	DisableCompression: true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout         time.Duration
	Retries         int
	UserAgent       string
	RandomUserAgent bool
	ProxyURL        string
	CookiesFile     string
	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *logger.Logger
}

// Client wraps http.Client with retry/backoff and default headers.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string

	limiter *rate.Limiter
	log     *logger.ComponentLogger
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	c, _ := NewWith(Config{})
	return c
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
		if cfg.RandomUserAgent {
			ua = uarand.GetRandom()
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}

	c := &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		Retries:   retries,
		UserAgent: ua,
		log:       log.WithComponent(logger.ComponentClient),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.CookiesFile != "" {
		if err := c.LoadCookies(cfg.CookiesFile); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCookies installs a cookie jar populated from a Netscape cookies.txt file.
func (c *Client) LoadCookies(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cookies file: %w", err)
	}
	defer f.Close()

	cookies, err := cookiestxt.Parse(f)
	if err != nil {
		return fmt.Errorf("parse cookies file: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	byHost := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		host := strings.TrimPrefix(ck.Domain, ".")
		if host == "" {
			continue
		}
		byHost[host] = append(byHost[host], ck)
	}
	for host, cks := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host}, cks)
	}
	c.HTTPClient.Jar = jar
	c.logger().Debug("loaded cookies", logger.Fields{"path": path, "count": len(cookies)})
	return nil
}

func (c *Client) logger() *logger.ComponentLogger {
	if c.log == nil {
		return logger.GetGlobalLogger().WithComponent(logger.ComponentClient)
	}
	return c.log
}

// Get performs a GET request with a simple retry policy for transient errors
// (HTTP 5xx or network failures). Backoff sleeps end early when ctx is done.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	ua := c.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	var (
		resp    *http.Response
		err     error
		backoff = initialBackoff
	)
	for attempt := 0; attempt < retries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("User-Agent", ua)
		req.Header.Set("Accept-Encoding", "br, gzip")

		resp, err = c.HTTPClient.Do(req)
		if err == nil && resp.StatusCode >= successMinCode && resp.StatusCode < retryableMinCode {
			return resp, nil
		}
		if err == nil && resp.StatusCode < successMinCode {
			return resp, nil
		}
		if attempt == retries-1 {
			break
		}
		fields := logger.Fields{"url": rawURL, "attempt": attempt + 1}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
		}
		c.logger().Debug("retrying request", fields)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return resp, err
}

// Fetch downloads rawURL and returns the status code and decoded body text.
func (c *Client) Fetch(ctx context.Context, rawURL string) (int, string, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return resp.StatusCode, body, nil
}

func decodeBody(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	default:
		return string(raw), nil
	}
	decoded, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(decoded), nil
}
