package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
)

const eventWriteTimeout = 5 * time.Second

// streamEvents upgrades to a WebSocket and relays bus events until the
// client goes away, the bus closes or the server shuts down.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var kinds []eventbus.Kind
	for _, k := range list(r.URL.Query(), "kind") {
		kind := eventbus.Kind(k)
		if !kind.Valid() {
			s.writeError(w, r, governance.NewValidationError("kind", "unknown event kind %q", k))
			return
		}
		kinds = append(kinds, kind)
	}

	// Subscribe before the handshake completes so the client sees every
	// event published after Dial returns.
	sub := s.engine.Subscribe("api.events."+r.RemoteAddr, kinds...)
	defer sub.Close()

	// Streams outlive api.write_timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is required to process control frames; CloseRead ends ctx
	// when the client closes.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-s.streams.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case evt, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "event bus closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
