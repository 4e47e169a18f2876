// Package client implements remote.Remote against the Mohallaa HTTP API.
//
// Reads and writes are plain JSON requests; Subscribe opens a WebSocket on
// the collection's change feed and redials it with backoff when it drops. Error envelopes returned by the server are
// turned back into *remote.Error (for row failures) or *errors.Error (for
// authentication failures) so callers see the same errors an in-process
// backend would produce.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline.
const DefaultTimeout = 15 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithDialer sets the WebSocket dialer used by Subscribe.
func WithDialer(d *websocket.Dialer) Option {
	return func(cl *Client) { cl.dialer = d }
}

// WithToken authenticates every request with a fixed bearer token.
func WithToken(token string) Option {
	return WithTokenSource(func() string { return token })
}

// WithTokenSource authenticates requests with the token returned by fn at
// request time. An empty token sends the request anonymously.
func WithTokenSource(fn func() string) Option {
	return func(cl *Client) { cl.token = fn }
}

// WithReconnectBackoff sets the delays between attempts to restore a lost
// change feed. The delay starts at initial and doubles up to max.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(cl *Client) {
		cl.reconnect = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			b.MaxElapsedTime = 0
			return b
		}
	}
}

// WithFeedLost registers fn to be called each time a change feed drops.
// Changes published until the feed is restored are not delivered, so fn is
// where callers reload what they display.
func WithFeedLost(fn func(collection string, err error)) Option {
	return func(cl *Client) { cl.feedLost = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l.With("component", "remote-client")
		}
	}
}

// Client is a remote.Remote backed by the HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	token  func() string
	logger *slog.Logger

	reconnect func() backoff.BackOff
	feedLost  func(collection string, err error)
}

var _ remote.Remote = (*Client)(nil)

// New returns a client for the API rooted at baseURL, including the base
// path (for example "http://localhost:8080/v1").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		dialer: websocket.DefaultDialer,
		token:  func() string { return "" },
		logger: slog.Default().With("component", "remote-client"),
	}
	WithReconnectBackoff(500*time.Millisecond, 30*time.Second)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(parts ...string) *url.URL {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.base.Path + "/" + strings.Join(parts, "/")
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	return &u
}

// Query encodes f as list query parameters.
func Query(f remote.Filter) url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
		if len(f.SearchFields) > 0 {
			q.Set("fields", strings.Join(f.SearchFields, ","))
		}
	}
	if f.OrderBy != "" {
		q.Set("order", f.OrderBy)
		if f.Desc {
			q.Set("desc", "true")
		}
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	for field, v := range f.Eq {
		q.Add("eq", field+":"+fmt.Sprint(v))
	}
	return q
}

type rowsResponse struct {
	Rows []remote.Row `json:"rows"`
}

// Read lists rows of collection matching f.
func (c *Client) Read(ctx context.Context, collection string, f remote.Filter) ([]remote.Row, error) {
	u := c.endpoint("collections", collection, "rows")
	u.RawQuery = Query(f).Encode()

	var out rowsResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// Write applies m to collection and returns the stored row.
func (c *Client) Write(ctx context.Context, collection string, m remote.Mutation) (remote.Row, error) {
	values := m.Values
	if values == nil {
		values = remote.Row{}
	}
	body := remote.Mutation{Op: m.Op, Key: m.Key, Values: values}

	var row remote.Row
	if err := c.do(ctx, http.MethodPost, c.endpoint("collections", collection, "rows"), body, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Remove deletes the row with key.
func (c *Client) Remove(ctx context.Context, collection, key string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("collections", collection, "rows", key), nil, nil)
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &remote.Error{Message: "server unreachable", Code: remote.CodeUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.Error{Message: "malformed response", Code: remote.CodeUnavailable, Err: err}
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError rebuilds the error a server response describes.
func decodeError(resp *http.Response) error {
	var env errorEnvelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &env)

	code, msg := env.Error.Code, env.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if code == "" {
			code = apperrors.CodeAuthRequired
		}
		return apperrors.New(code).WithDetail(msg)
	}
	switch code {
	case remote.CodeNotFound, remote.CodeConflict, remote.CodeInvalid, remote.CodeUnavailable:
	default:
		code = codeForStatus(resp.StatusCode)
	}
	return &remote.Error{Message: msg, Code: code}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return remote.CodeNotFound
	case status == http.StatusConflict:
		return remote.CodeConflict
	case status >= 500:
		return remote.CodeUnavailable
	case status >= 400:
		return remote.CodeInvalid
	default:
		return ""
	}
}

