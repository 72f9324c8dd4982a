package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/treemirror/record"
)

// Stdout writes one JSON patch per line to an io.Writer (default os.Stdout).
type Stdout struct {
	mu      sync.Mutex
	enc     *json.Encoder
	stamper *Stamper
}

// NewStdout creates a Stdout sink. A nil w means os.Stdout; a nil stamper
// gets a fresh session.
func NewStdout(w io.Writer, stamper *Stamper) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	if stamper == nil {
		stamper = NewStamper("")
	}
	return &Stdout{enc: json.NewEncoder(w), stamper: stamper}
}

func (s *Stdout) Initialize(ctx context.Context, children []record.Record) error {
	return s.WritePatch(ctx, s.stamper.Initialize(children))
}

func (s *Stdout) ApplyChanged(ctx context.Context, removed, moved []record.Record) error {
	return s.WritePatch(ctx, s.stamper.Changes(removed, moved))
}

func (s *Stdout) WritePatch(_ context.Context, p *record.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(p)
}

func (s *Stdout) Close() error { return nil }
