package pushover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Pushover API host.
const DefaultBaseURL = "https://api.pushover.net"

const (
	messagesPath = "/1/messages.json"
	soundsPath   = "/1/sounds.json"
	validatePath = "/1/users/validate.json"
	receiptsPath = "/1/receipts/"
)

// Doer executes HTTP requests. *http.Client satisfies it; substitute another
// implementation to control timeouts, proxies or retries.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pusher is the part of Client used by code that only sends messages.
type Pusher interface {
	PushMessage(ctx context.Context, msg *Message) (*Status, error)
	PushMessageResponse(ctx context.Context, msg *Message) (*Response, error)
	RequestVerification(ctx context.Context, msg *Message) (*Response, error)
	RequestEmergencyReceipt(ctx context.Context, apiToken, receipt string) (*Receipt, error)
	CancelEmergencyMessage(ctx context.Context, apiToken, receipt string) (*Response, error)
	Sounds(ctx context.Context) ([]Sound, error)
	RefreshSounds(ctx context.Context) ([]Sound, error)
	ResetSounds()
}

var _ Pusher = (*Client)(nil)

// Client talks to the Pushover API. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    Doer
	log     zerolog.Logger
	sounds  atomic.Pointer[[]Sound]
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) error {
		if d == nil {
			return fmt.Errorf("http client is nil")
		}
		c.http = d
		return nil
	}
}

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(rawURL string) Option {
	return func(c *Client) error {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		if parsed.Scheme == "" {
			return fmt.Errorf("base url must include scheme")
		}
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		c.baseURL = parsed
		return nil
	}
}

// WithTimeout installs an *http.Client with the given timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.http = &http.Client{Timeout: timeout}
		return nil
	}
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// New creates a Client for DefaultBaseURL using http.DefaultClient unless
// options say otherwise.
func New(opts ...Option) (*Client, error) {
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: base,
		http:    http.DefaultClient,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// PushMessage sends msg and returns the minimal status.
func (c *Client) PushMessage(ctx context.Context, msg *Message) (*Status, error) {
	const op = "push message"
	resp, err := c.postMultipart(ctx, messagesPath, PushFields(msg), msg.Image())
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	st, err := DecodeStatus(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return st, nil
}

// PushMessageResponse sends msg and returns the full response, including the
// receipt of an emergency message and the remaining quota.
func (c *Client) PushMessageResponse(ctx context.Context, msg *Message) (*Response, error) {
	const op = "push message"
	resp, err := c.postMultipart(ctx, messagesPath, PushFields(msg), msg.Image())
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	r, err := DecodeResponse(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return r, nil
}

// RequestVerification checks that the user or group key of msg, and its device
// when set, exist. Only the token, user and device of msg are sent.
func (c *Client) RequestVerification(ctx context.Context, msg *Message) (*Response, error) {
	const op = "validate user"
	resp, err := c.postMultipart(ctx, validatePath, VerificationFields(msg), nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	r, err := DecodeResponse(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return r, nil
}

// RequestEmergencyReceipt fetches the state of an emergency message.
func (c *Client) RequestEmergencyReceipt(ctx context.Context, apiToken, receipt string) (*Receipt, error) {
	const op = "get receipt"
	q := url.Values{}
	q.Set("token", apiToken)
	u := c.resolve(receiptsPath+receipt+".json") + "?" + q.Encode()
	resp, err := c.send(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	r, err := DecodeReceipt(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return r, nil
}

// CancelEmergencyMessage stops the retries of an emergency message.
func (c *Client) CancelEmergencyMessage(ctx context.Context, apiToken, receipt string) (*Response, error) {
	const op = "cancel receipt"
	u := c.resolve(receiptsPath + receipt + "/cancel.json")
	body := strings.NewReader(CancelForm(apiToken).Encode())
	resp, err := c.send(ctx, http.MethodPost, u, body, "application/x-www-form-urlencoded")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	r, err := DecodeResponse(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return r, nil
}

// Sounds returns the sound list, fetching it on first use. The cached list is
// kept until ResetSounds is called. Concurrent first calls may each fetch; the
// last successful one is kept. A failed fetch leaves the cache empty. Every
// call returns its own copy.
func (c *Client) Sounds(ctx context.Context) ([]Sound, error) {
	if cached := c.sounds.Load(); cached != nil {
		return slices.Clone(*cached), nil
	}
	return c.RefreshSounds(ctx)
}

// RefreshSounds fetches the sound list regardless of the cache and replaces
// the cached copy on success.
func (c *Client) RefreshSounds(ctx context.Context) ([]Sound, error) {
	const op = "list sounds"
	resp, err := c.send(ctx, http.MethodGet, c.resolve(soundsPath), nil, "")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	sounds, err := DecodeSounds(resp)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	cached := slices.Clone(sounds)
	c.sounds.Store(&cached)
	return sounds, nil
}

// ResetSounds drops the cached sound list.
func (c *Client) ResetSounds() {
	c.sounds.Store(nil)
}

func (c *Client) postMultipart(ctx context.Context, p string, fields []Field, img *Image) (*http.Response, error) {
	body, contentType, err := EncodeMultipart(fields, img)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPost, c.resolve(p), bytes.NewReader(body), contentType)
}

func (c *Client) send(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", req.URL.Path).Msg("pushover request failed")
		return nil, err
	}
	if resp == nil {
		return nil, malformed("transport returned no response")
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("http_status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("pushover request")
	return resp, nil
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}

// BaseURL returns the configured API host without trailing slash.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.baseURL.String(), "/")
}
