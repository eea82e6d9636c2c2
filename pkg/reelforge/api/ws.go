package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

// wsHub bridges job.Bus to WebSocket clients connected at /ws, and to
// Server-Sent Events clients connected at /api/jobs/{id}/events
// (SPEC_FULL.md §C). Every connection gets its own Bus subscription so a
// slow client only drops its own backlog, never another's.
type wsHub struct {
	bus    *job.Bus
	logger *slog.Logger

	upgrader websocket.Upgrader
}

func newWSHub(bus *job.Bus, logger *slog.Logger) *wsHub {
	return &wsHub{
		bus:    bus,
		logger: logger.With("component", "ws_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Reelforge is served behind the operator's own reverse proxy
			// (spec has no cross-origin browser client), so same-origin
			// checks are skipped the way a local dashboard would.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// wsWriteWait bounds how long a single frame write may block before the
// connection is considered dead.
const wsWriteWait = 10 * time.Second

// wsPingInterval keeps NAT/proxy connections alive; must be well under
// any intermediary's idle timeout.
const wsPingInterval = 30 * time.Second

// serveWS upgrades the request and streams every job.Event to the
// client as JSON frames until the connection closes or its subscription
// channel is closed. While the subscriber's backlog is full the bus
// drops new events for it; the stream itself continues.
func (h *wsHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	// Drain and discard client frames so the read side stays empty and
	// the connection's close is detected promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// serveJobEventsSSE implements the supplemented GET /api/jobs/{id}/events
// endpoint: a Server-Sent Events stream filtered to one job, for clients
// that cannot use WebSockets.
func (h *wsHub) serveJobEventsSSE(w http.ResponseWriter, r *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.JobID != jobID {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, string(b))
			flusher.Flush()
		}
	}
}

func (h *wsHub) closeAll() {
	// Subscribers are per-connection channels owned by job.Bus; closing
	// the bus itself is the server's responsibility, not the hub's, so
	// there is nothing additional to release here beyond letting
	// in-flight handlers observe Server.Stop's http.Server.Shutdown.
}
