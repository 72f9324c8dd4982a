package htmldoc

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/treemirror/dom"
)

// origin is where a pre-existing node sat when it was first touched in the
// current window.
type origin struct {
	parent *html.Node
	prev   *html.Node
}

// changeLog accumulates edits between two Flush calls.
type changeLog struct {
	createdSet   map[*html.Node]struct{}
	createdOrder []*html.Node

	moved      map[*html.Node]origin
	movedOrder []*html.Node

	attrNames []string
	attrs     map[string][]*html.Node
	attrSeen  map[string]map[*html.Node]struct{}
}

func newChangeLog() *changeLog {
	return &changeLog{
		createdSet: make(map[*html.Node]struct{}),
		moved:      make(map[*html.Node]origin),
		attrs:      make(map[string][]*html.Node),
		attrSeen:   make(map[string]map[*html.Node]struct{}),
	}
}

func (c *changeLog) isCreated(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if _, ok := c.createdSet[p]; ok {
			return true
		}
	}
	return false
}

func (c *changeLog) created(n *html.Node) {
	if _, ok := c.createdSet[n]; ok {
		return
	}
	c.createdSet[n] = struct{}{}
	c.createdOrder = append(c.createdOrder, n)
}

func (c *changeLog) touched(n *html.Node) {
	if c.isCreated(n) {
		return
	}
	if _, ok := c.moved[n]; ok {
		return
	}
	c.moved[n] = origin{parent: n.Parent, prev: n.PrevSibling}
	c.movedOrder = append(c.movedOrder, n)
}

func (c *changeLog) attrChanged(n *html.Node, name string) {
	// Attribute edits on nodes added in the same window are part of the add.
	if c.isCreated(n) {
		return
	}
	seen, ok := c.attrSeen[name]
	if !ok {
		seen = make(map[*html.Node]struct{})
		c.attrSeen[name] = seen
		c.attrNames = append(c.attrNames, name)
	}
	if _, dup := seen[n]; dup {
		return
	}
	seen[n] = struct{}{}
	c.attrs[name] = append(c.attrs[name], n)
}

func (c *changeLog) empty() bool {
	return len(c.createdOrder) == 0 && len(c.movedOrder) == 0 && len(c.attrNames) == 0
}

type subscription struct {
	doc      *Document
	queries  []dom.Query
	callback func([]dom.Summary)
	once     sync.Once
}

func (s *subscription) Disconnect() {
	s.once.Do(func() {
		s.doc.mu.Lock()
		delete(s.doc.subs, s)
		s.doc.mu.Unlock()
	})
}

// Observe registers a callback for the given queries. Deliveries happen on
// Flush, from the goroutine that calls it.
func (d *Document) Observe(queries []dom.Query, callback func([]dom.Summary)) (dom.Subscription, error) {
	s := &subscription{doc: d, queries: append([]dom.Query(nil), queries...), callback: callback}
	d.mu.Lock()
	d.subs[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

// Flush classifies the edits made since the previous Flush and delivers
// them to every subscription with at least one non-empty summary. It
// returns the number of subscriptions notified.
func (d *Document) Flush() int {
	type delivery struct {
		cb        func([]dom.Summary)
		summaries []dom.Summary
	}

	d.mu.Lock()
	log := d.pending
	d.pending = newChangeLog()
	if log.empty() || len(d.subs) == 0 {
		d.mu.Unlock()
		return 0
	}
	cls := d.classify(log)
	var out []delivery
	for s := range d.subs {
		summaries := make([]dom.Summary, len(s.queries))
		nonEmpty := false
		for i, q := range s.queries {
			summaries[i] = cls.summaryFor(q)
			if !summaries[i].Empty() {
				nonEmpty = true
			}
		}
		if nonEmpty {
			out = append(out, delivery{cb: s.callback, summaries: summaries})
		}
	}
	d.mu.Unlock()

	for _, dl := range out {
		dl.cb(dl.summaries)
	}
	d.logger.Debug("htmldoc: flushed changes",
		"added", len(cls.added), "reparented", len(cls.reparented),
		"reordered", len(cls.reordered), "removed", len(cls.removed),
		"subscribers", len(out))
	return len(out)
}

type classified struct {
	added, removed, reparented, reordered []*html.Node
	attrNames                             []string
	attrs                                 map[string][]*html.Node
}

// classify must run with d.mu held.
func (d *Document) classify(log *changeLog) classified {
	var cls classified
	seen := make(map[*html.Node]struct{})
	for _, n := range log.createdOrder {
		if !d.attached(n) {
			continue
		}
		walkElements(n, func(e *html.Node) {
			if _, dup := seen[e]; dup {
				return
			}
			seen[e] = struct{}{}
			cls.added = append(cls.added, e)
		})
	}
	for _, n := range log.movedOrder {
		o := log.moved[n]
		switch {
		case !d.attached(n):
			cls.removed = append(cls.removed, n)
		case n.Parent != o.parent:
			cls.reparented = append(cls.reparented, n)
		case n.PrevSibling != o.prev:
			cls.reordered = append(cls.reordered, n)
		}
	}
	cls.attrNames = log.attrNames
	cls.attrs = make(map[string][]*html.Node, len(log.attrs))
	for name, nodes := range log.attrs {
		for _, n := range nodes {
			if d.attached(n) {
				cls.attrs[name] = append(cls.attrs[name], n)
			}
		}
	}
	return cls
}

func (c classified) summaryFor(q dom.Query) dom.Summary {
	var s dom.Summary
	if len(q.Attributes) > 0 {
		s.AttributeChanged = make(map[string][]dom.Node, len(q.Attributes))
		for _, name := range q.Attributes {
			for _, n := range c.attrs[name] {
				if h := Wrap(n); q.Matches(h) {
					s.AttributeChanged[name] = append(s.AttributeChanged[name], h)
				}
			}
		}
		return s
	}
	s.Added = matching(q, c.added)
	s.Removed = matching(q, c.removed)
	s.Reparented = matching(q, c.reparented)
	s.Reordered = matching(q, c.reordered)
	return s
}

func matching(q dom.Query, nodes []*html.Node) []dom.Node {
	var out []dom.Node
	for _, n := range nodes {
		if h := Wrap(n); q.Matches(h) {
			out = append(out, h)
		}
	}
	return out
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}
