package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/treemirror/record"
)

// WebSocket streams patches over one persistent connection. The connection
// is dialled lazily and redialled once when a write fails.
type WebSocket struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	stamper      *Stamper
	logger       *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// WebSocketOption configures a WebSocket sink.
type WebSocketOption func(*WebSocket)

// WithWebSocketHeader sets headers sent on dial.
func WithWebSocketHeader(h http.Header) WebSocketOption {
	return func(s *WebSocket) { s.header = h }
}

// WithWebSocketWriteTimeout sets the per-write deadline. Default: 5s.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(s *WebSocket) { s.writeTimeout = d }
}

// WithWebSocketLogger sets a custom logger.
func WithWebSocketLogger(l *slog.Logger) WebSocketOption {
	return func(s *WebSocket) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWebSocketStamper shares a stamper with other sinks.
func WithWebSocketStamper(st *Stamper) WebSocketOption {
	return func(s *WebSocket) { s.stamper = st }
}

// NewWebSocket creates a WebSocket sink for a ws:// or wss:// url.
func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	s := &WebSocket{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		writeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.stamper == nil {
		s.stamper = NewStamper("")
	}
	return s
}

func (s *WebSocket) Initialize(ctx context.Context, children []record.Record) error {
	return s.WritePatch(ctx, s.stamper.Initialize(children))
}

func (s *WebSocket) ApplyChanged(ctx context.Context, removed, moved []record.Record) error {
	return s.WritePatch(ctx, s.stamper.Changes(removed, moved))
}

func (s *WebSocket) WritePatch(ctx context.Context, p *record.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if s.conn == nil {
			conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
			if err != nil {
				return fmt.Errorf("websocket: dial: %w", err)
			}
			s.conn = conn
			s.logger.Debug("websocket: connected", "url", s.url)
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			lastErr = err
		} else if err := s.conn.WriteJSON(p); err != nil {
			lastErr = err
		} else {
			return nil
		}
		s.logger.Warn("websocket: write failed, redialling", "seq", p.Seq, "error", lastErr)
		s.conn.Close()
		s.conn = nil
	}
	return fmt.Errorf("websocket: write: %w", lastErr)
}

// Close sends a close frame and releases the connection.
func (s *WebSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}
