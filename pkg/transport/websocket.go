package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"mercator-hq/helios/pkg/governance"
)

// WebSocketSink writes each message as a text frame on a client connection.
type WebSocketSink struct {
	url  string
	conn *websocket.Conn
}

// NewWebSocketSink creates a sink that dials url on Connect.
func NewWebSocketSink(url string) (*WebSocketSink, error) {
	if url == "" {
		return nil, governance.NewValidationError("transport.websocket.url", "url is required")
	}
	return &WebSocketSink{url: url}, nil
}

// Name implements Sink.
func (s *WebSocketSink) Name() string { return "websocket" }

// Connect dials the remote endpoint.
func (s *WebSocketSink) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return governance.NewTransportError(s.Name(), "connect", err)
	}
	s.conn = conn
	return nil
}

// Send writes msg.Value as a text frame.
func (s *WebSocketSink) Send(ctx context.Context, msg Message) error {
	if s.conn == nil {
		return governance.NewTransportError(s.Name(), "send", errNotConnected)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, msg.Value); err != nil {
		return governance.NewTransportError(s.Name(), "send", err)
	}
	return nil
}

// Close closes the connection with a normal closure status.
func (s *WebSocketSink) Close() error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Close(websocket.StatusNormalClosure, "closed"); err != nil {
		return governance.NewTransportError(s.Name(), "close", err)
	}
	return nil
}
