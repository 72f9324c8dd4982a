package mcpquic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/treemirror/idgen"
)

// Handler runs one MCP session per accepted QUIC connection.
type Handler struct {
	server *mcp.Server
	logger *slog.Logger
	newID  idgen.Generator
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIDGenerator sets the generator for session IDs.
func WithIDGenerator(gen idgen.Generator) HandlerOption {
	return func(h *Handler) {
		if gen != nil {
			h.newID = gen
		}
	}
}

// NewHandler creates a connection handler dispatching to srv.
func NewHandler(srv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		server: srv,
		logger: logger,
		newID:  idgen.Prefixed("quic_", idgen.NanoID(8)),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeConn blocks until the MCP session on conn ends.
func (h *Handler) ServeConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warn("mcpquic: accept stream", "remote", remote, "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}
	if err := ValidateMagicBytes(stream); err != nil {
		h.logger.Warn("mcpquic: bad preamble", "remote", remote, "error", err)
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return
	}

	id := h.newID()
	ss, err := h.server.Connect(ctx, &serverTransport{stream: stream, id: id}, nil)
	if err != nil {
		h.logger.Error("mcpquic: connect", "session", id, "error", err)
		stream.Close()
		return
	}
	h.logger.Info("mcpquic: session started", "session", id, "remote", remote)
	if err := ss.Wait(); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("mcpquic: session error", "session", id, "error", err)
	}
	h.logger.Info("mcpquic: session ended", "session", id, "remote", remote)
}

// Listener accepts MCP-over-QUIC connections on a UDP address.
type Listener struct {
	ln      *quic.Listener
	handler *Handler
	logger  *slog.Logger
}

// Listen binds addr. tlsCfg must advertise ALPNProtocolMCP.
func Listen(addr string, tlsCfg *tls.Config, srv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := quic.ListenAddr(addr, tlsCfg, QUICConfig())
	if err != nil {
		return nil, fmt.Errorf("mcpquic: listen %s: %w", addr, err)
	}
	logger.Info("mcpquic: listening", "addr", ln.Addr().String())
	return &Listener{ln: ln, handler: NewHandler(srv, logger, opts...), logger: logger}, nil
}

// Addr returns the bound UDP address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Serve accepts connections until ctx is cancelled or the listener closes.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			l.logger.Warn("mcpquic: accept", "error", err)
			continue
		}
		if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
			conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
			continue
		}
		go l.handler.ServeConn(ctx, conn)
	}
}

// Close stops accepting connections.
func (l *Listener) Close() error { return l.ln.Close() }

// serverTransport runs the SDK's line-delimited JSON-RPC over a QUIC stream.
type serverTransport struct {
	stream *quic.Stream
	id     string
}

func (t *serverTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	iot := &mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: streamWriteCloser{t.stream},
	}
	conn, err := iot.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &sessionConn{Connection: conn, id: t.id}, nil
}

type sessionConn struct {
	mcp.Connection
	id string
}

func (c *sessionConn) SessionID() string { return c.id }

type streamWriteCloser struct{ stream *quic.Stream }

func (w streamWriteCloser) Write(p []byte) (int, error) { return w.stream.Write(p) }
func (w streamWriteCloser) Close() error                { return w.stream.Close() }
