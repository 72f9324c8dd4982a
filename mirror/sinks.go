package mirror

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/treemirror/mirror/internal/sink"
)

// Sink is the remote mirror interface.
type Sink = sink.Sink

// PatchWriter is implemented by sinks that ship stamped patches.
type PatchWriter = sink.PatchWriter

// Stamper labels mirror calls with id, session, seq and timestamp.
type Stamper = sink.Stamper

// Router fans calls out to several sinks.
type Router = sink.Router

// InitializeFunc receives the initial snapshot in-process.
type InitializeFunc = sink.InitializeFunc

// ChangedFunc receives each change batch in-process.
type ChangedFunc = sink.ChangedFunc

// NewStamper creates a Stamper; an empty session gets a generated one.
func NewStamper(session string) *Stamper {
	return sink.NewStamper(session)
}

// NewRouter creates a fan-out sink stamping each call once.
func NewRouter(stamper *Stamper, logger *slog.Logger, sinks ...Sink) *Router {
	return sink.NewRouter(stamper, logger, sinks...)
}

// NewStdoutSink creates a JSON-lines sink.
func NewStdoutSink(w io.Writer, stamper *Stamper) Sink {
	return sink.NewStdout(w, stamper)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, stamper *Stamper, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookStamper(stamper), sink.WithWebhookLogger(logger))
}

// NewWebSocketSink creates a persistent websocket sink.
func NewWebSocketSink(url string, stamper *Stamper, logger *slog.Logger) Sink {
	return sink.NewWebSocket(url, sink.WithWebSocketStamper(stamper), sink.WithWebSocketLogger(logger))
}

// NewCallbackSink creates an in-process sink, zero serialisation.
func NewCallbackSink(onInitialize InitializeFunc, onChanged ChangedFunc) Sink {
	return sink.NewCallback(onInitialize, onChanged)
}
