package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/treemirror/dom"
)

var (
	// ErrForeignNode is returned when a handle does not belong to htmldoc.
	ErrForeignNode = errors.New("htmldoc: node is not an htmldoc node")
	// ErrNotElement is returned when an element handle is required.
	ErrNotElement = errors.New("htmldoc: node is not an element")
	// ErrHierarchy is returned when a move would put a node inside itself.
	ErrHierarchy = errors.New("htmldoc: node cannot be moved into its own subtree")
)

// Document is a mutable HTML tree. Edits go through its methods so that the
// document can report them to subscribers as classified change sets on the
// next Flush. It is safe for concurrent use; callbacks run outside the lock.
type Document struct {
	mu     sync.RWMutex
	root   *html.Node
	logger *slog.Logger

	subs    map[*subscription]struct{}
	pending *changeLog
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for feed diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// Parse reads a complete HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	d := &Document{
		root:    root,
		logger:  slog.Default(),
		subs:    make(map[*subscription]struct{}),
		pending: newChangeLog(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// ReadLocker returns a lock that excludes edits while held. Readers walking
// the tree from another goroutine take it around the walk.
func (d *Document) ReadLocker() sync.Locker { return d.mu.RLocker() }

// Root returns the document node.
func (d *Document) Root() dom.Node { return Wrap(d.root) }

// Body returns the body element, nil when the document has none.
func (d *Document) Body() dom.Node { return Wrap(bodyOf(d.root)) }

// ByID returns the first element with the given id attribute.
func (d *Document) ByID(id string) dom.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Wrap(findFirst(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return true
			}
		}
		return false
	}))
}

// Render serialises the current tree as HTML.
func (d *Document) Render() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, fmt.Errorf("htmldoc: render: %w", err)
	}
	return buf.Bytes(), nil
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes as its last children. The new nodes are returned.
func (d *Document) AppendHTML(parent dom.Node, fragment string) ([]dom.Node, error) {
	return d.InsertHTML(parent, nil, fragment)
}

// InsertHTML parses fragment and inserts the nodes before ref, or at the
// end of parent when ref is nil.
func (d *Document) InsertHTML(parent, ref dom.Node, fragment string) ([]dom.Node, error) {
	p, ok := unwrap(parent)
	if !ok {
		return nil, ErrForeignNode
	}
	if p.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	var r *html.Node
	if ref != nil {
		if r, ok = unwrap(ref); !ok {
			return nil, ErrForeignNode
		}
		if r.Parent != p {
			return nil, fmt.Errorf("htmldoc: insert: reference is not a child of parent")
		}
	}

	ctxNode := &html.Node{Type: html.ElementNode, Data: p.Data, DataAtom: atom.Lookup([]byte(p.Data)), Namespace: p.Namespace}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse fragment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dom.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		if r != nil {
			p.InsertBefore(n, r)
		} else {
			p.AppendChild(n)
		}
		d.pending.created(n)
		out = append(out, Node{n: n})
	}
	return out, nil
}

// Move detaches n and reinserts it under parent before ref (nil = append).
// Depending on the original position this is reported as a reparent or a
// reorder. Moving n under itself or one of its descendants fails with
// ErrHierarchy.
func (d *Document) Move(n, parent, ref dom.Node) error {
	x, ok := unwrap(n)
	if !ok {
		return ErrForeignNode
	}
	p, ok := unwrap(parent)
	if !ok {
		return ErrForeignNode
	}
	var r *html.Node
	if ref != nil {
		if r, ok = unwrap(ref); !ok {
			return ErrForeignNode
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for a := p; a != nil; a = a.Parent {
		if a == x {
			return ErrHierarchy
		}
	}
	d.pending.touched(x)
	if x.Parent != nil {
		x.Parent.RemoveChild(x)
	}
	if r != nil && r.Parent == p {
		p.InsertBefore(x, r)
	} else {
		p.AppendChild(x)
	}
	return nil
}

// Remove detaches n from the tree.
func (d *Document) Remove(n dom.Node) error {
	x, ok := unwrap(n)
	if !ok {
		return ErrForeignNode
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if x.Parent == nil {
		return nil
	}
	d.pending.touched(x)
	x.Parent.RemoveChild(x)
	return nil
}

// SetAttr sets an attribute on an element. Setting the current value is a
// no-op and is not reported.
func (d *Document) SetAttr(n dom.Node, name, value string) error {
	x, ok := unwrap(n)
	if !ok {
		return ErrForeignNode
	}
	if x.Type != html.ElementNode {
		return ErrNotElement
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range x.Attr {
		if attrKey(a) == name {
			if a.Val == value {
				return nil
			}
			x.Attr[i].Val = value
			d.pending.attrChanged(x, name)
			return nil
		}
	}
	x.Attr = append(x.Attr, html.Attribute{Key: name, Val: value})
	d.pending.attrChanged(x, name)
	return nil
}

// RemoveAttr deletes an attribute from an element.
func (d *Document) RemoveAttr(n dom.Node, name string) error {
	x, ok := unwrap(n)
	if !ok {
		return ErrForeignNode
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range x.Attr {
		if attrKey(a) == name {
			x.Attr = append(x.Attr[:i], x.Attr[i+1:]...)
			d.pending.attrChanged(x, name)
			return nil
		}
	}
	return nil
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirst(c, match); f != nil {
			return f
		}
	}
	return nil
}
