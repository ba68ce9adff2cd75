package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fireplus/internal/models"
)

const (
	statusPath     = "/php/easpanel.php"
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

var errTimeout = errors.New("timeout")

// Client fetches the status dump of one panel.
type Client struct {
	host       string
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	header     http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithTimeout overrides the request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient builds a client for host, an IP address or host name with an
// optional port. A host carrying an http(s) scheme is used as the base URL.
func NewClient(host string, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("panel host is required")
	}

	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	endpoint, err := url.JoinPath(base, statusPath)
	if err != nil {
		return nil, fmt.Errorf("build panel url for %q: %w", host, err)
	}

	c := &Client{
		host:       host,
		endpoint:   endpoint,
		httpClient: &http.Client{},
		timeout:    requestTimeout,
		header:     http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Host returns the configured host.
func (c *Client) Host() string { return c.host }

// Fetch reads, decodes and normalizes the current status.
func (c *Client) Fetch(ctx context.Context) (models.StatusRecord, error) {
	raw, err := c.FetchRaw(ctx)
	if err != nil {
		return models.StatusRecord{}, err
	}
	rec, err := Decode(raw)
	if err != nil {
		return models.StatusRecord{}, &Error{Kind: KindClient, Host: c.host, Err: err}
	}
	return Normalize(rec), nil
}

// FetchRaw returns the undecoded status dump.
func (c *Client) FetchRaw(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", c.fail(KindClient, fmt.Errorf("build request: %w", err))
	}
	for k, vv := range c.header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", c.fail(KindAuthentication, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", c.fail(KindCommunication, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", c.transportError(ctx, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}

// transportError classifies a failure of the round trip itself. Deadline
// expiry, DNS and connection errors are all communication problems.
func (c *Client) transportError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return c.fail(KindCommunication, fmt.Errorf("%w after %s: %w", errTimeout, c.timeout, err))
	}
	var netErr net.Error
	var urlErr *url.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.Canceled) {
		return c.fail(KindCommunication, err)
	}
	return c.fail(KindClient, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Host: c.host, Err: err}
}
