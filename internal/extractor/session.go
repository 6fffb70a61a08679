package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// LauncherOptions configures HTTP sessions.
type LauncherOptions struct {
	UserAgent string
	// Timeout bounds each request. Zero means DefaultAttemptTimeout.
	Timeout time.Duration
	// HostInterval is the minimum spacing between requests to one host.
	HostInterval time.Duration
	// Transport replaces the default transport; used by tests.
	Transport http.RoundTripper
}

// HTTPLauncher opens cookie-isolated HTTP sessions that share one
// per-host rate limit.
type HTTPLauncher struct {
	opts    LauncherOptions
	limiter *hostLimiter
}

// NewHTTPLauncher creates a launcher.
func NewHTTPLauncher(opts LauncherOptions) *HTTPLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAttemptTimeout
	}
	return &HTTPLauncher{
		opts:    opts,
		limiter: newHostLimiter(opts.HostInterval, 1),
	}
}

// Launch opens a new session with its own cookie jar.
func (l *HTTPLauncher) Launch(ctx context.Context) (Session, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if l.opts.Transport != nil {
		client.SetTransport(l.opts.Transport)
	} else {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", l.opts.UserAgent)
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetTimeout(l.opts.Timeout)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return l.limiter.wait(req.Context(), hostOf(req.URL))
	})
	return &httpSession{client: client}, nil
}

type httpSession struct {
	client *resty.Client
}

func (s *httpSession) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := s.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: %s", url, res.Status())
	}
	return res.Body(), nil
}

func (s *httpSession) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}
