package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedBuffer     = 64
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

// handleFeed implements GET /sessions/{id}/feed. Session events are written
// as JSON text messages until the client goes away or the session is removed.
func (h *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Feed upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, cancel := s.Subscribe(feedBuffer)
	defer cancel()

	h.metrics.SetFeedClients(int(h.feedClients.Add(1)))
	defer func() {
		h.metrics.SetFeedClients(int(h.feedClients.Add(-1)))
	}()

	h.logger.Debug("Feed client connected",
		slog.String("session_id", s.ID()),
		slog.String("remote_addr", r.RemoteAddr))

	// The reader only processes control frames and notices disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current status first so clients need no separate request.
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteJSON(map[string]interface{}{"type": "status", "status": s.Status()}); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("Feed client disconnected", slog.String("session_id", s.ID()))
			return

		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Feed write failed",
					slog.String("session_id", s.ID()),
					slog.String("error", err.Error()))
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
