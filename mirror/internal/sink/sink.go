// Package sink defines the delivery backends of the mirror client.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/treemirror/idgen"
	"github.com/hazyhaar/treemirror/record"
)

// Sink is the remote mirror as seen by the client: one call per initial
// snapshot, one call per coalesced change batch.
type Sink interface {
	Initialize(ctx context.Context, children []record.Record) error
	ApplyChanged(ctx context.Context, removed, moved []record.Record) error
	Close() error
}

// PatchWriter is implemented by sinks that ship stamped patches. A Router
// stamps each call once and hands the same patch to every PatchWriter, so
// all wire sinks agree on id and seq.
type PatchWriter interface {
	WritePatch(ctx context.Context, p *record.Patch) error
}

// Stamper turns mirror calls into patch envelopes for one session.
type Stamper struct {
	session string
	gen     idgen.Generator
	seq     atomic.Uint64
	now     func() time.Time
}

// NewStamper returns a Stamper for session. An empty session gets a fresh
// session ID.
func NewStamper(session string) *Stamper {
	if session == "" {
		session = idgen.Session()
	}
	return &Stamper{session: session, gen: idgen.Default, now: time.Now}
}

// Session returns the session the stamper labels patches with.
func (s *Stamper) Session() string { return s.session }

// Initialize stamps an initial snapshot.
func (s *Stamper) Initialize(children []record.Record) *record.Patch {
	p := s.stamp(record.PatchInitialize)
	p.Children = children
	return p
}

// Changes stamps a change batch.
func (s *Stamper) Changes(removed, moved []record.Record) *record.Patch {
	p := s.stamp(record.PatchChanges)
	if removed != nil {
		p.Removed = removed
	}
	p.Moved = moved
	return p
}

func (s *Stamper) stamp(typ record.PatchType) *record.Patch {
	return &record.Patch{
		ID:        s.gen(),
		Session:   s.session,
		Seq:       s.seq.Add(1),
		Type:      typ,
		Removed:   []record.Record{},
		Timestamp: s.now().UnixMilli(),
	}
}
