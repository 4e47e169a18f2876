package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mohallaa/mohallaa/pkg/remote"
)

const (
	changeBuffer = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = pongTimeout * 9 / 10
)

// serveChanges streams the change feed of one collection as JSON text
// frames. Query parameters eq and search narrow the feed the same way they
// narrow a list request.
func (h *handler) serveChanges(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	eq, err := parseEq(r.URL.Query()["eq"])
	if err != nil {
		writeEnvelope(w, err.(*apiError))
		return
	}
	filter := remote.Filter{
		Eq:           eq,
		Search:       r.URL.Query().Get("search"),
		SearchFields: r.URL.Query()["fields"],
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Metrics.RecordWebSocketError("upgrade")
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// A slow reader loses the stream rather than blocking the broker.
	out := make(chan remote.Change, changeBuffer)
	unsub, err := h.cfg.Remote.Subscribe(ctx, collection, filter, func(c remote.Change) {
		select {
		case out <- c:
		default:
			h.cfg.Metrics.RecordWebSocketError("overflow")
			cancel()
		}
	})
	if err != nil {
		h.cfg.Metrics.RecordWebSocketError("subscribe")
		h.logger.Error("subscribe failed", "collection", collection, "error", err)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return
	}
	defer unsub()

	h.cfg.Metrics.StreamOpened()
	defer h.cfg.Metrics.StreamClosed()
	h.logger.Debug("change stream opened", "collection", collection)

	go h.readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case c := <-out:
			data, err := json.Marshal(c)
			if err != nil {
				h.logger.Error("encode change failed", "collection", collection, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.cfg.Metrics.RecordWebSocketError("write")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.cfg.Metrics.RecordWebSocketError("ping")
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// cancels the stream when the client goes away.
func (h *handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEnvelope(w http.ResponseWriter, e *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(e)
}
