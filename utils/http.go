package utils

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// Delay calculates the wait before the given retry attempt (1-based)
func (c *RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	// Exponential backoff: baseDelay * multiplier^(attempt-1)
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1))

	jitter := delay * c.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.BaseDelay)
	}

	return time.Duration(delay)
}

// SessionConfig contains configuration for the session client
type SessionConfig struct {
	RequestTimeout   time.Duration
	DownloadTimeout  time.Duration
	UserAgent        string
	ProxyURL         string
	CloudflareBypass bool
}

// DefaultSessionConfig returns a SessionConfig built from the application defaults
func DefaultSessionConfig() *SessionConfig {
	cfg := internal.DefaultConfig()
	return &SessionConfig{
		RequestTimeout:   cfg.RequestTimeout,
		DownloadTimeout:  cfg.DownloadTimeout,
		UserAgent:        cfg.UserAgent,
		CloudflareBypass: true,
	}
}

// Session is the cookie-persisting HTTP context shared by every request of a run.
// It is safe for concurrent use; cookies are only changed by server responses.
type Session struct {
	client   *resty.Client
	jar      http.CookieJar
	config   SessionConfig
	loginURL string
}

// NewSession creates a session with an empty cookie jar
func NewSession(config *SessionConfig) (*Session, error) {
	if config == nil {
		config = DefaultSessionConfig()
	}
	cfg := *config
	defaults := DefaultSessionConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaults.DownloadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   internal.MaxWorkers,
		IdleConnTimeout:       90 * time.Second,
	}

	if cfg.ProxyURL != "" {
		if err := configureProxy(transport, cfg.ProxyURL); err != nil {
			return nil, err
		}
	}

	var roundTripper http.RoundTripper = transport
	if cfg.CloudflareBypass {
		roundTripper = cloudflarebp.AddCloudFlareByPass(roundTripper)
	}

	client := resty.New()
	client.SetTransport(roundTripper)
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetPreRequestHook(func(_ *resty.Client, req *http.Request) error {
		internal.GetLogger().LogHTTPRequest(req)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		internal.GetLogger().LogHTTPResponse(res.RawResponse)
		return nil
	})

	return &Session{
		client: client,
		jar:    jar,
		config: cfg,
	}, nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// Get fetches a page. The whole exchange is bounded by the request timeout.
func (s *Session) Get(ctx context.Context, pageURL string) (*resty.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	return s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Get(pageURL)
}

// PostForm submits an urlencoded form, following redirects
func (s *Session) PostForm(ctx context.Context, pageURL string, form url.Values) (*resty.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	return s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetFormDataFromValues(form).
		Post(pageURL)
}

// Stream starts a GET whose body is left unread. The caller must close the
// returned body; the download timeout covers the whole transfer.
func (s *Session) Stream(ctx context.Context, fileURL string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.DownloadTimeout)

	res, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fileURL)
	if err != nil {
		cancel()
		return nil, err
	}

	raw := res.RawResponse
	if raw == nil {
		cancel()
		return nil, fmt.Errorf("no response for %s", fileURL)
	}
	raw.Body = &cancelOnClose{ReadCloser: raw.Body, cancel: cancel}
	return raw, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Cookies returns the cookies the jar would send to rawURL
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// SetLoginURL records the sign-in page the session was opened against.
// Call it before the session is shared between goroutines.
func (s *Session) SetLoginURL(loginURL string) {
	s.loginURL = loginURL
}

// LoginURL returns the sign-in page, or "" when the session never signed in
func (s *Session) LoginURL() string {
	return s.loginURL
}

// UserAgent returns the User-Agent sent with every request
func (s *Session) UserAgent() string {
	return s.config.UserAgent
}

// FinalURL returns the URL of the last request in a redirect chain
func FinalURL(res *resty.Response) string {
	if res == nil {
		return ""
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		return res.RawResponse.Request.URL.String()
	}
	if res.Request != nil {
		return res.Request.URL
	}
	return ""
}
