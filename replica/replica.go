// Package replica is the receiving end of the mirror: it rebuilds the
// mirrored documents from patches, keeps their state queryable and logs
// every patch in SQLite.
//
// The reconstruction is upsert-only. A moved record is placed under the
// deepest structural record its address descends from, where it replaces
// the sibling in the same slot (same path and list index) or is appended.
package replica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/treemirror/mirror"
	"github.com/hazyhaar/treemirror/record"
	"github.com/hazyhaar/treemirror/replica/internal/store"
)

var (
	ErrNotFound     = errors.New("replica: session not found")
	ErrInvalidPatch = errors.New("replica: invalid patch")
	ErrNoStore      = errors.New("replica: no patch store configured")
)

// Session is the state of one mirrored document.
type Session = store.Session

// Schema is the SQLite schema of the replica database.
const Schema = store.Schema

// Replica holds the reconstructed sessions. It is safe for concurrent use.
type Replica struct {
	mu       sync.Mutex
	sessions map[string]*session
	store    *store.Store
	ownsDB   bool
	logger   *slog.Logger
}

type session struct {
	*store.Session
}

// Option configures a Replica.
type Option func(*Replica)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDB persists sessions and patches in db. The schema must already be
// applied (see Schema); Open does it.
func WithDB(db *sql.DB) Option {
	return func(r *Replica) {
		if db != nil {
			r.store = &store.Store{DB: db}
		}
	}
}

// New creates a Replica. Without WithDB, state lives in memory only and
// the patch log is unavailable.
func New(opts ...Option) *Replica {
	r := &Replica{
		sessions: make(map[string]*session),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Open creates a Replica backed by the SQLite database at path.
func Open(path string, opts ...Option) (*Replica, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replica: open store: %w", err)
	}
	r := New(opts...)
	r.store = st
	r.ownsDB = true
	return r, nil
}

// Close closes the database when Open created it.
func (r *Replica) Close() error {
	if r.ownsDB && r.store != nil {
		return r.store.Close()
	}
	return nil
}

// Apply folds one patch into its session. An initialize patch replaces the
// session state and restarts its sequence. A changes patch at or below the
// last applied seq is a redelivery and is ignored; a jump above it counts
// the missing patches as gaps.
func (r *Replica) Apply(ctx context.Context, p *record.Patch) error {
	if p == nil || p.Session == "" {
		return fmt.Errorf("%w: missing session", ErrInvalidPatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.loadLocked(ctx, p.Session)
	if err != nil {
		return err
	}

	// Changes go to a copy that replaces the live session only once the
	// store has accepted the patch.
	var sess *session
	if cur == nil {
		sess = &session{Session: &store.Session{ID: p.Session}}
	} else {
		sess = cur.clone()
	}

	switch p.Type {
	case record.PatchInitialize:
		sess.State = cloneRecords(p.Children)
	case record.PatchChanges:
		if sess.LastSeq > 0 && p.Seq <= sess.LastSeq {
			r.logger.Debug("replica: ignoring redelivered patch",
				"session", p.Session, "seq", p.Seq, "last_seq", sess.LastSeq)
			return nil
		}
		if p.Seq > sess.LastSeq+1 {
			missing := p.Seq - sess.LastSeq - 1
			sess.Gaps += missing
			r.logger.Warn("replica: sequence gap",
				"session", p.Session, "seq", p.Seq, "last_seq", sess.LastSeq, "missing", missing)
		}
		sess.remove(p.Removed)
		for _, rec := range p.Moved {
			sess.upsert(rec)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPatch, p.Type)
	}
	sess.LastSeq = p.Seq
	sess.Patches++
	sess.UpdatedAt = time.Now().UnixMilli()
	if sess.CreatedAt == 0 {
		sess.CreatedAt = sess.UpdatedAt
	}

	if r.store != nil {
		if err := r.store.Commit(ctx, sess.Session, p); err != nil {
			return fmt.Errorf("replica: commit: %w", err)
		}
	}
	r.sessions[p.Session] = sess

	r.logger.Debug("replica: patch applied",
		"session", p.Session, "seq", p.Seq, "type", p.Type, "records", len(sess.State))
	return nil
}

// loadLocked returns the session from memory, then from the store. nil
// means unknown.
func (r *Replica) loadLocked(ctx context.Context, id string) (*session, error) {
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if r.store == nil {
		return nil, nil
	}
	st, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replica: load session: %w", err)
	}
	if st == nil {
		return nil, nil
	}
	s := &session{Session: st}
	r.sessions[id] = s
	return s, nil
}

func (s *session) clone() *session {
	cp := *s.Session
	cp.State = cloneRecords(s.State)
	return &session{Session: &cp}
}

// cloneRecords copies the record tree. Attribute maps are shared: records
// never modify them.
func cloneRecords(recs []record.Record) []record.Record {
	if recs == nil {
		return nil
	}
	out := make([]record.Record, len(recs))
	for i, rec := range recs {
		rec.ChildNodes = cloneRecords(rec.ChildNodes)
		out[i] = rec
	}
	return out
}

// sameSlot reports whether b takes the place of a. Siblings of a list share
// their path and differ by index. There is one doctype.
func sameSlot(a, b record.Record) bool {
	if a.NodeType != b.NodeType {
		return false
	}
	switch a.NodeType {
	case record.TypeDoctype:
		return true
	case record.TypeText:
		return a.Path == b.Path && a.Text == b.Text
	}
	return a.Path == b.Path && a.Idx == b.Idx
}

// encloses reports whether rec belongs below parent. Text records carry the
// path of the element holding them.
func encloses(parent, rec record.Record) bool {
	if rec.NodeType == record.TypeText && rec.Path == parent.Path {
		return true
	}
	return rec.Path != "" && strings.HasPrefix(rec.Path, parent.Path+"/")
}

// parentOf returns the deepest structural record in recs that encloses rec.
func parentOf(recs []record.Record, rec record.Record) *record.Record {
	for i := range recs {
		cand := &recs[i]
		if !cand.Structural() || !encloses(*cand, rec) {
			continue
		}
		if deeper := parentOf(cand.ChildNodes, rec); deeper != nil {
			return deeper
		}
		return cand
	}
	return nil
}

// upsert places rec under its parent record, or at the top level when no
// record encloses it. A replaced record keeps the context token it
// inherited, which a root serialization cannot see.
func (s *session) upsert(rec record.Record) {
	list := &s.State
	if p := parentOf(s.State, rec); p != nil {
		list = &p.ChildNodes
	}
	for i, old := range *list {
		if sameSlot(old, rec) {
			if rec.Obj == "" {
				rec.Obj = old.Obj
			}
			(*list)[i] = rec
			return
		}
	}
	*list = append(*list, rec)
}

// remove drops every record, at any depth, in the slot of a removed one.
func (s *session) remove(recs []record.Record) {
	if len(recs) == 0 {
		return
	}
	s.State = without(s.State, recs)
}

func without(list, drop []record.Record) []record.Record {
	if list == nil {
		return nil
	}
	kept := list[:0]
	for _, rec := range list {
		if slices.ContainsFunc(drop, func(d record.Record) bool { return sameSlot(rec, d) }) {
			continue
		}
		rec.ChildNodes = without(rec.ChildNodes, drop)
		kept = append(kept, rec)
	}
	return kept
}

// State returns a copy of a session with its records and their digest. A
// client whose Snapshot hashes to the same digest has converged.
func (r *Replica) State(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	cp := *s.Session
	cp.State = append([]record.Record(nil), s.State...)
	if cp.Digest, err = record.Hash(cp.State); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Sessions lists the known sessions without their records, most recently
// updated first.
func (r *Replica) Sessions(ctx context.Context) ([]*Session, error) {
	if r.store != nil {
		list, err := r.store.ListSessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("replica: list sessions: %w", err)
		}
		return list, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		cp := *s.Session
		cp.State = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Patches returns the logged patches of a session after afterSeq.
func (r *Replica) Patches(ctx context.Context, id string, afterSeq uint64, limit int) ([]*record.Patch, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	list, err := r.store.ListPatches(ctx, id, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("replica: list patches: %w", err)
	}
	return list, nil
}

// Delete forgets a session and its patch log.
func (r *Replica) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	if r.store != nil {
		if err := r.store.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("replica: delete session: %w", err)
		}
	}
	return nil
}

// Sink returns a mirror sink that applies calls to this replica in-process.
// stamper labels the calls; nil means a fresh session.
func (r *Replica) Sink(stamper *mirror.Stamper) mirror.Sink {
	if stamper == nil {
		stamper = mirror.NewStamper("")
	}
	return &localSink{replica: r, stamper: stamper}
}

// localSink is also a mirror.PatchWriter, so a Router shares its stamp.
type localSink struct {
	replica *Replica
	stamper *mirror.Stamper
}

func (s *localSink) Initialize(ctx context.Context, children []record.Record) error {
	return s.replica.Apply(ctx, s.stamper.Initialize(children))
}

func (s *localSink) ApplyChanged(ctx context.Context, removed, moved []record.Record) error {
	return s.replica.Apply(ctx, s.stamper.Changes(removed, moved))
}

func (s *localSink) WritePatch(ctx context.Context, p *record.Patch) error {
	return s.replica.Apply(ctx, p)
}

func (s *localSink) Close() error { return nil }
