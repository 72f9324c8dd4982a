// Package reduce turns one window of classified mutations into the minimal
// set of dirty roots and serializes them.
//
// A root is a changed node whose parent did not change in the same window.
// Serializing the root covers every changed descendant, so descendants are
// never emitted twice. Removals are not computed: the mirror is an
// upsert-only view keyed by address.
package reduce

import (
	"errors"
	"log/slog"

	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/filter"
	"github.com/hazyhaar/treemirror/record"
	"github.com/hazyhaar/treemirror/serialize"
)

// Batch is one window of classified mutations.
type Batch struct {
	Added      []dom.Node
	Reparented []dom.Node
	Reordered  []dom.Node
	// AttributeChanged maps a tracked attribute to the elements whose value
	// changed, in first-seen order.
	AttributeChanged map[string][]dom.Node
}

// Empty reports whether the batch holds nothing to reduce.
func (b Batch) Empty() bool {
	if len(b.Added)+len(b.Reparented)+len(b.Reordered) > 0 {
		return false
	}
	for _, nodes := range b.AttributeChanged {
		if len(nodes) > 0 {
			return false
		}
	}
	return true
}

// Reducer computes dirty roots. It keeps no state between calls.
type Reducer struct {
	ser    *serialize.Serializer
	filter *filter.Filter
	logger *slog.Logger
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reducer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Reducer that serializes with s and filters with f.
func New(s *serialize.Serializer, f *filter.Filter, opts ...Option) *Reducer {
	r := &Reducer{ser: s, filter: f, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reduce serializes the dirty roots of b, then appends the value changes of
// tracked attributes that produced non-empty text.
func (r *Reducer) Reduce(b Batch) []record.Record {
	if b.Empty() {
		return nil
	}
	moved := r.SerializeAddedAndMoved(b.Added, b.Reparented, b.Reordered)

	var changed []dom.Node
	for _, name := range r.filter.Policy().TrackedAttributes {
		changed = append(changed, b.AttributeChanged[name]...)
	}
	for _, rec := range r.SerializeValueChanges(changed) {
		if rec.Text != "" {
			moved = append(moved, rec)
		}
	}
	return moved
}

// SerializeAddedAndMoved selects the topmost changed nodes that are anchored
// under the body and not suppressed, and serializes each one with its list
// position as the inherited index.
func (r *Reducer) SerializeAddedAndMoved(added, reparented, reordered []dom.Node) []record.Record {
	total := len(added) + len(reparented) + len(reordered)
	if total == 0 {
		return nil
	}
	all := make([]dom.Node, 0, total)
	all = append(all, added...)
	all = append(all, reparented...)
	all = append(all, reordered...)

	changed := make(map[dom.Node]struct{}, total)
	for _, n := range all {
		if n != nil {
			changed[n] = struct{}{}
		}
	}

	var roots []dom.Node
	picked := make(map[dom.Node]struct{})
	for _, n := range all {
		if n == nil || r.filter.Blacklisted(n) {
			continue
		}
		if _, dup := picked[n]; dup {
			continue
		}
		ok, err := r.isRoot(n, changed)
		if err != nil {
			r.skip(n, err)
			continue
		}
		if ok {
			picked[n] = struct{}{}
			roots = append(roots, n)
		}
	}

	var moved []record.Record
	for _, n := range roots {
		idx, err := r.parentIndex(n)
		if err != nil {
			r.skip(n, err)
			continue
		}
		if rec, ok := r.ser.Serialize(n, idx, ""); ok {
			moved = append(moved, rec)
		}
	}
	r.logger.Debug("reduce: roots selected",
		"candidates", total, "roots", len(roots), "records", len(moved))
	return moved
}

// isRoot reports whether n is a dirty root: its parent is an unchanged
// element, it is not noise or ignored, and its ancestors reach the body (or
// a fragment) without crossing an ignore marker.
func (r *Reducer) isRoot(n dom.Node, changed map[dom.Node]struct{}) (bool, error) {
	parent, err := dom.ParentOf(n)
	if err != nil {
		return false, err
	}
	if parent == nil || parent.Kind() != dom.KindElement {
		return false, nil
	}
	if _, ok := changed[parent]; ok {
		return false, nil
	}
	if r.filter.Noise(n, parent) || r.filter.Ignored(n) {
		return false, nil
	}

	for p := parent; ; {
		switch {
		case p.Kind() == dom.KindFragment:
			return true, nil
		case p.Kind() != dom.KindElement:
			return false, nil
		case p.TagName() == "body":
			return true, nil
		case r.filter.Ignored(p):
			return false, nil
		}
		p, err = dom.ParentOf(p)
		if err != nil {
			return false, err
		}
		if p == nil {
			return false, nil
		}
	}
}

// parentIndex returns the 1-based position of the nearest list-tag
// ancestor-or-self of n among its same-tag element siblings, 0 when there
// is none below the body.
func (r *Reducer) parentIndex(n dom.Node) (int, error) {
	p := n
	for !r.filter.ListTag(p) {
		if p.Kind() != dom.KindElement || p.TagName() == "body" {
			return 0, nil
		}
		next, err := dom.ParentOf(p)
		if err != nil {
			return 0, err
		}
		if next == nil {
			return 0, nil
		}
		p = next
	}

	container, err := dom.ParentOf(p)
	if err != nil {
		return 0, err
	}
	if container == nil {
		return 0, dom.ErrDetached
	}
	ordinal := 0
	for _, sib := range dom.ElementChildren(container) {
		if sib.TagName() != p.TagName() {
			continue
		}
		ordinal++
		if sib == p {
			return ordinal, nil
		}
	}
	// The list item left its container while we were reading it.
	return 0, dom.ErrDetached
}

// SerializeValueChanges serializes each distinct node once, in first-seen
// order. Nodes that serialize to nothing are dropped.
func (r *Reducer) SerializeValueChanges(nodes []dom.Node) []record.Record {
	seen := make(map[dom.Node]struct{}, len(nodes))
	var out []record.Record
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if rec, ok := r.ser.Serialize(n, 0, ""); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Reducer) skip(n dom.Node, err error) {
	if errors.Is(err, dom.ErrDetached) {
		r.logger.Debug("reduce: skipping detached node", "tag", n.TagName())
		return
	}
	r.logger.Warn("reduce: skipping node", "tag", n.TagName(), "error", err)
}
