// Package dom defines the read-only view of a host document that the mirror
// engine walks. The host owns every node; nothing in treemirror mutates the
// tree through this interface.
//
// A live tree can change while it is being read. Every parent walk therefore
// goes through ParentOf, which reports ErrDetached when a node has lost its
// parent link. Callers treat that error as "skip this node".
package dom

import (
	"errors"
	"strings"
)

// ErrDetached is returned when a node's ancestor chain is severed before a
// document or fragment boundary is reached.
var ErrDetached = errors.New("dom: node detached")

// Kind is the type of a host node.
type Kind int

const (
	KindElement  Kind = 1
	KindText     Kind = 3
	KindComment  Kind = 8
	KindDocument Kind = 9
	KindDoctype  Kind = 10
	KindFragment Kind = 11
)

// Node is a handle into the host tree.
//
// Implementations must be comparable, and two handles for the same host node
// must compare equal: the reducer keys its identity tables on Node values.
type Node interface {
	Kind() Kind
	// TagName is the lower-case local name for elements, "" otherwise.
	TagName() string
	Attr(name string) (string, bool)
	HasAttributes() bool
	// Parent returns nil for documents, fragments and detached nodes.
	Parent() Node
	Children() []Node
	// Data is the character content for text and comment nodes and the
	// name for doctypes.
	Data() string
	// DoctypeIDs returns the public and system identifiers of a doctype.
	DoctypeIDs() (public, system string)
}

// Layout answers rendering questions about elements. It is the only window
// the engine has onto style computation.
type Layout interface {
	// InlineDisplay is the element's own style.display value, "" when unset.
	InlineDisplay(n Node) string
	// ComputedDisplay is the resolved display value.
	ComputedDisplay(n Node) string
	// OffsetSize is the rendered box size in CSS pixels.
	OffsetSize(n Node) (width, height int)
}

// ParentOf is the fallible parent read used by every ancestor walk.
// It returns (nil, nil) for documents and fragments, which legitimately
// have no parent.
func ParentOf(n Node) (Node, error) {
	if n == nil {
		return nil, ErrDetached
	}
	p := n.Parent()
	if p != nil {
		return p, nil
	}
	switch n.Kind() {
	case KindDocument, KindFragment:
		return nil, nil
	}
	return nil, ErrDetached
}

// IsElement reports whether n is an element with the given tag.
// An empty tag matches any element.
func IsElement(n Node, tag string) bool {
	if n == nil || n.Kind() != KindElement {
		return false
	}
	return tag == "" || n.TagName() == tag
}

// AttrValue returns the attribute value or "".
func AttrValue(n Node, name string) string {
	v, _ := n.Attr(name)
	return v
}

// HasAttr reports whether the attribute is present, whatever its value.
func HasAttr(n Node, name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// TextContent concatenates the character data of every descendant text
// node, in document order.
func TextContent(n Node) string {
	if n.Kind() == KindText {
		return n.Data()
	}
	var b strings.Builder
	var walk func(Node)
	walk = func(c Node) {
		for _, k := range c.Children() {
			switch k.Kind() {
			case KindText:
				b.WriteString(k.Data())
			case KindElement, KindFragment, KindDocument:
				walk(k)
			}
		}
	}
	walk(n)
	return b.String()
}

// HasDescendant reports whether any element below n has the given tag.
func HasDescendant(n Node, tag string) bool {
	for _, c := range n.Children() {
		if c.Kind() != KindElement {
			continue
		}
		if c.TagName() == tag || HasDescendant(c, tag) {
			return true
		}
	}
	return false
}

// ElementChildren returns the element children of n in order.
func ElementChildren(n Node) []Node {
	var out []Node
	for _, c := range n.Children() {
		if c.Kind() == KindElement {
			out = append(out, c)
		}
	}
	return out
}
