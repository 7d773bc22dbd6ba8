package fetch

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

	"github.com/rs/zerolog/log"
)

// Content type families accepted by Load.
var (
	HTMLTypes = []string{"text/html", "application/xhtml+xml"}
	JSONTypes = []string{"application/json", "text/json", "text/plain"}
)

// DefaultMaxBytes caps a remote body.
const DefaultMaxBytes = 32 << 20

// Client loads input documents from local paths or http(s) URLs with
// timeouts and limited retry on transient errors.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxBytes caps the response body. Zero means DefaultMaxBytes.
	MaxBytes int64
}

// IsURL reports whether location names an http(s) resource rather than a
// local path.
func IsURL(location string) bool {
	u, err := url.Parse(strings.TrimSpace(location))
	return err == nil && isHTTPScheme(u) && u.Host != ""
}

// Load reads location from disk, or over HTTP when it is a URL whose content
// type matches one of accept. An empty accept list allows any type.
func (c *Client) Load(ctx context.Context, location string, accept []string) ([]byte, error) {
	if !IsURL(location) {
		return os.ReadFile(location)
	}
	body, ct, err := c.Get(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(accept) > 0 && !hasContentType(ct, accept) {
		return nil, fmt.Errorf("unsupported content type %q for %s", ct, location)
	}
	return body, nil
}

// Get issues a GET with context, user-agent and bounded retry for transient
// errors. It returns the body and its content type.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, ct, err := c.tryOnce(ctx, rawURL)
		if err == nil {
			return body, ct, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 || ctx.Err() != nil {
			break
		}
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("transient fetch error; retrying")
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return nil, "", lastErr
}

// errServer marks 5xx responses as retryable.
var errServer = errors.New("server error")

func (c *Client) tryOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", req.URL.Scheme)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, "", fmt.Errorf("%w: %d", errServer, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, "", fmt.Errorf("body exceeds %d bytes", limit)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

func (c *Client) httpClient() *http.Client {
	var base http.Client
	if c.HTTPClient != nil {
		base = *c.HTTPClient
	}
	base.CheckRedirect = c.checkRedirect
	return &base
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	if len(via) >= max {
		return errors.New("too many redirects")
	}
	if !isHTTPScheme(req.URL) {
		return errors.New("redirect to unsupported scheme")
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errServer)
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func hasContentType(ct string, accept []string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, a := range accept {
		if strings.HasPrefix(ct, a) {
			return true
		}
	}
	return false
}
