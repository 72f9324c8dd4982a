package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/treemirror/record"
)

// Router fans mirror calls out to all configured sinks. One sink error
// does not block the others: errors are logged and the first encountered
// is returned.
type Router struct {
	sinks   []Sink
	stamper *Stamper
	logger  *slog.Logger
}

// NewRouter creates a fan-out router. Patch writers among sinks receive the
// patch stamped once by stamper (a fresh session when nil).
func NewRouter(stamper *Stamper, logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if stamper == nil {
		stamper = NewStamper("")
	}
	return &Router{sinks: sinks, stamper: stamper, logger: logger}
}

// Add appends a sink.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Initialize(ctx context.Context, children []record.Record) error {
	var patch *record.Patch
	return r.each("initialize", func(s Sink) error {
		if pw, ok := s.(PatchWriter); ok {
			if patch == nil {
				patch = r.stamper.Initialize(children)
			}
			return pw.WritePatch(ctx, patch)
		}
		return s.Initialize(ctx, children)
	})
}

func (r *Router) ApplyChanged(ctx context.Context, removed, moved []record.Record) error {
	var patch *record.Patch
	return r.each("apply changed", func(s Sink) error {
		if pw, ok := s.(PatchWriter); ok {
			if patch == nil {
				patch = r.stamper.Changes(removed, moved)
			}
			return pw.WritePatch(ctx, patch)
		}
		return s.ApplyChanged(ctx, removed, moved)
	})
}

func (r *Router) each(op string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: "+op+" failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
