package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Subscribe opens the change feed of collection. Only the Eq and Search
// parts of f are sent; the server ignores ordering and limits on streams.
// A feed that drops is reported to the WithFeedLost handler and redialed
// until it is restored or the subscription ends. The subscription ends when
// ctx is done or the returned function is called.
func (c *Client) Subscribe(ctx context.Context, collection string, f remote.Filter, onChange func(remote.Change)) (remote.Unsubscribe, error) {
	fd := &feed{
		client:     c,
		collection: collection,
		filter:     remote.Filter{Eq: f.Eq, Search: f.Search, SearchFields: f.SearchFields},
		onChange:   onChange,
		done:       make(chan struct{}),
	}
	conn, err := fd.dial(ctx)
	if err != nil {
		return nil, err
	}
	fd.conn = conn
	fd.unwatch = context.AfterFunc(ctx, fd.stop)

	go fd.run(ctx)
	return fd.stop, nil
}

type feed struct {
	client     *Client
	collection string
	filter     remote.Filter
	onChange   func(remote.Change)

	once    sync.Once
	done    chan struct{}
	unwatch func() bool

	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *feed) dial(ctx context.Context) (*websocket.Conn, error) {
	c := f.client
	u := c.endpoint("collections", f.collection, "changes")
	q := Query(f.filter)
	if tok := c.token(); tok != "" {
		q.Set("access_token", tok)
	}
	u.RawQuery = q.Encode()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, &remote.Error{Message: "change feed unreachable", Code: remote.CodeUnavailable, Err: err}
	}
	return conn, nil
}

func (f *feed) stopped() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *feed) stop() {
	f.once.Do(func() {
		close(f.done)
		f.mu.Lock()
		conn := f.conn
		f.conn = nil
		f.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
	})
}

// swap installs conn as the live connection. It reports false, leaving
// conn to the caller, once the feed is stopped.
func (f *feed) swap(conn *websocket.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped() {
		return false
	}
	f.conn = conn
	return true
}

func (f *feed) run(ctx context.Context) {
	defer func() {
		f.stop()
		f.unwatch()
	}()
	log := f.client.logger.With("collection", f.collection)
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		err := f.read(conn)
		conn.Close()
		if f.stopped() {
			return
		}
		log.Warn("change feed lost", "error", err)
		if f.client.feedLost != nil {
			f.client.feedLost(f.collection, err)
		}
		if !f.redial(ctx, log) {
			return
		}
		log.Info("change feed restored")
	}
}

func (f *feed) read(conn *websocket.Conn) error {
	for {
		var ch remote.Change
		if err := conn.ReadJSON(&ch); err != nil {
			return err
		}
		if f.stopped() {
			return nil
		}
		f.onChange(ch)
	}
}

// redial reconnects with backoff. It gives up when the feed is stopped or
// the server rejects the credentials.
func (f *feed) redial(ctx context.Context, log *slog.Logger) bool {
	b := backoff.WithContext(f.client.reconnect(), ctx)
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return false
		}
		t := time.NewTimer(wait)
		select {
		case <-f.done:
			t.Stop()
			return false
		case <-t.C:
		}

		conn, err := f.dial(ctx)
		if err != nil {
			var ae *apperrors.Error
			if errors.As(err, &ae) {
				log.Error("change feed rejected", "error", err)
				return false
			}
			log.Debug("change feed redial failed", "error", err)
			continue
		}
		if !f.swap(conn) {
			conn.Close()
			return false
		}
		return true
	}
}
